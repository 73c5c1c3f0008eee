package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/activitysync/internal/actuals"
	"example.com/activitysync/internal/api"
	"example.com/activitysync/internal/app"
	"example.com/activitysync/internal/auth"
	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/logging"
	"example.com/activitysync/internal/outbox"
	httptransport "example.com/activitysync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogDevelopment).Named("api")
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open storage", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	defer backend.Close()

	svc := app.NewServices(cfg, backend, app.Providers(cfg), logger)

	// Postgres mode publishes through the outbox; memory mode runs jobs in-process.
	var background func()
	if backend.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(backend.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.Named("outbox")))
		go dispatcher.Start(ctx)
		background = dispatcher.Wait
	} else {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := svc.Worker.Run(ctx, backend.Local.Jobs()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("in-process worker stopped", zap.Error(err))
			}
		}()
		background = func() { <-done }
	}

	handler := api.NewHandler(api.Dependencies{
		Dispatcher:  svc.Dispatcher,
		Grants:      svc.Tokens,
		Connections: backend.Connections,
		Runs:        backend.Runs,
		Linker:      svc.Linker,
		Sessions:    backend.Sessions,
		Profiles:    backend.Profiles,
		Resolver:    actuals.NewResolver(),
	}, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.RequestLogger(logger, authMiddleware.Wrap(mux)))

	go func() {
		logger.Info("activity-sync api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	background()
}
