package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example.com/wellness/internal/api"
	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/catalog"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/logging"
	"example.com/wellness/internal/outbox"
	"example.com/wellness/internal/persistence/postgres"
	httptransport "example.com/wellness/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat, "wellness-api")

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

	repo := postgres.NewRepository(pool)
	producer := outbox.NewKafkaProducer(outbox.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		ClientID:     cfg.KafkaClientID,
		BatchTimeout: cfg.KafkaBatchTimeout,
	})
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithRetryBackoff(cfg.DLQBaseDelay))
	go dispatcher.Start(ctx)

	service := domain.NewService(repo)
	handler := api.NewHandler(service, catalog.NewDefault())

	router := mux.NewRouter()
	router.Use(httptransport.Monitor)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	handler.RegisterRoutes(router)

	clients, err := httptransport.NewClientResolver(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid trusted proxies")
	}
	limiter := httptransport.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, clients)
	go limiter.Cleanup(ctx)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, httptransport.Chain(router,
		httptransport.CORS(cfg.CORSAllowedOrigins),
		httptransport.RequestLogger(logger, clients),
		limiter.Middleware,
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Msg("wellness api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	waitOrTimeout(dispatcher.Wait, 5*time.Second)
}

func waitOrTimeout(wait func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("outbox dispatcher did not stop in time")
	}
}
