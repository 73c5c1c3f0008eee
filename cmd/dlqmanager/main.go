package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/logging"
	"example.com/activitysync/internal/outbox"
	httptransport "example.com/activitysync/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg, err := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogDevelopment).Named("dlqmanager")
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	go func() {
		logger.Info("metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started",
		zap.Duration("interval", cfg.DLQPollInterval),
		zap.Int("max_retries", cfg.DLQMaxRetries))

loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager received shutdown signal")
			break loop
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				logger.Error("dlq pass failed", zap.Error(err))
			} else if processed > 0 {
				logger.Info("dlq pass complete", zap.Int("processed", processed))
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
}
