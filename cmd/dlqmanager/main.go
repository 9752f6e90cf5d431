package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example.com/wellness/internal/config"
	"example.com/wellness/internal/logging"
	"example.com/wellness/internal/outbox"
	"example.com/wellness/internal/persistence/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat, "wellness-dlqmanager")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:      cfg.PostgresURL,
		MaxConns: cfg.PostgresMaxConns,
		MinConns: cfg.PostgresMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("dlq manager metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	logger.Info().
		Dur("interval", cfg.DLQPollInterval).
		Int("max_retries", cfg.DLQMaxRetries).
		Int("batch_size", cfg.DLQBatchSize).
		Msg("dlq manager started")

	manager.Run(ctx, cfg.DLQPollInterval, cfg.DLQBatchSize)
	logger.Info().Msg("dlq manager shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
}
