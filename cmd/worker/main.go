package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/activitysync/internal/app"
	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/consumer"
	"example.com/activitysync/internal/logging"
	httptransport "example.com/activitysync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogDevelopment).Named("worker")
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Storage != config.StoragePostgres {
		logger.Fatal("the worker consumes Kafka and requires postgres storage", zap.String("storage", cfg.Storage))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer backend.Close()

	svc := app.NewServices(cfg, backend, app.Providers(cfg), logger)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.SyncRequestsTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, consumer.NewSyncJobHandler(svc.Worker, logger.Named("handler")),
		consumer.WithLogger(logger),
		consumer.WithRetry(cfg.ConsumerAttempts, cfg.ConsumerBackoff))

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	go func() {
		logger.Info("metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("consumer started",
		zap.String("topic", cfg.SyncRequestsTopic),
		zap.String("group", cfg.ConsumerGroupID))
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
}
