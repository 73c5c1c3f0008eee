// Package app wires storage, providers and sync services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/ingest"
	"example.com/activitysync/internal/linking"
	"example.com/activitysync/internal/migration"
	"example.com/activitysync/internal/persistence/memory"
	"example.com/activitysync/internal/persistence/postgres"
	"example.com/activitysync/internal/provider"
	"example.com/activitysync/internal/provider/strava"
)

// Backend groups the stores of one storage mode.
type Backend struct {
	Connections domain.ConnectionStore
	Runs        domain.SyncRunStore
	Activities  domain.ActivityStore
	Sessions    domain.SessionStore
	Profiles    domain.ProfileStore
	Queue       domain.JobQueue
	Completions ingest.CompletionRecorder

	// Pool is nil in memory mode.
	Pool *pgxpool.Pool
	// Local is the in-process queue, set only in memory mode.
	Local *memory.Queue
}

// OpenBackend connects the configured storage. Postgres is migrated before use.
func OpenBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		store := memory.NewStore()
		queue := memory.NewQueue(0)
		return &Backend{
			Connections: store,
			Runs:        store,
			Activities:  store,
			Sessions:    store,
			Profiles:    store,
			Queue:       queue,
			Completions: queue,
			Local:       queue,
		}, nil
	case config.StoragePostgres, "":
		if err := migration.NewRunner(cfg.PostgresURL, nil, logger).Up(); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		repo := postgres.NewRepository(pool)
		out := postgres.NewOutbox(pool, postgres.Topics{
			SyncRequests: cfg.SyncRequestsTopic,
			SyncEvents:   cfg.SyncEventsTopic,
		})
		return &Backend{
			Connections: repo,
			Runs:        repo,
			Activities:  repo,
			Sessions:    repo,
			Profiles:    repo,
			Queue:       out,
			Completions: out,
			Pool:        pool,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// Close releases the connection pool, if any.
func (b *Backend) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// Providers registers every provider client the service knows how to talk to.
func Providers(cfg config.Config) *provider.Manager {
	m := provider.NewManager()
	m.Register("strava", strava.NewClient(strava.Config{
		ClientID:     cfg.Strava.ClientID,
		ClientSecret: cfg.Strava.ClientSecret,
		BaseURL:      cfg.Strava.BaseURL,
		Timeout:      cfg.ProviderTimeout,
	}))
	return m
}

// Services are the sync use cases built on a Backend.
type Services struct {
	Dispatcher *ingest.Dispatcher
	Tokens     *ingest.TokenManager
	Sync       *ingest.SyncService
	Linker     *linking.AutoLinker
	Worker     *ingest.Worker
}

// NewServices builds the use cases over b and providers.
func NewServices(cfg config.Config, b *Backend, providers *provider.Manager, logger *zap.Logger) Services {
	opts := []ingest.Option{ingest.WithLogger(logger)}

	tokens := ingest.NewTokenManager(b.Connections, providers, opts...)
	persister := ingest.NewPersister(b.Activities, opts...)
	sync := ingest.NewSyncService(b.Connections, b.Runs, tokens, providers, persister, cfg.SyncLookbackDays, opts...)
	linker := linking.NewAutoLinker(b.Activities, b.Sessions, linking.WithLogger(logger.Named("linking")))

	return Services{
		Dispatcher: ingest.NewDispatcher(cfg.SyncProviders, providers, b.Connections, b.Runs, b.Queue, opts...),
		Tokens:     tokens,
		Sync:       sync,
		Linker:     linker,
		Worker:     ingest.NewWorker(sync, linker, b.Completions, opts...),
	}
}
