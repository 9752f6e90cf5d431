package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"example.com/wellness/internal/catalog"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/consumer"
	"example.com/wellness/internal/logging"
	"example.com/wellness/internal/persistence/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat, "wellness-consumer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:      cfg.PostgresURL,
		MaxConns: cfg.PostgresMaxConns,
		MinConns: cfg.PostgresMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	handler := consumer.Handlers{
		consumer.NewPersistenceHandler(pool),
		consumer.NewMetricsHandler(catalog.NewDefault()),
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		topicLogger := logger.With().Str("topic", topic).Str("group", cfg.ConsumerGroupID).Logger()
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLogger.Info().Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error().Err(err).Msg("consumer stopped")
			}
		}()
	}

	<-stop
	logger.Info().Msg("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	wg.Wait()
}
