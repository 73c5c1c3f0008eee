package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/observability"
	"example.com/activitysync/internal/provider"
)

// ProviderSupport reports whether a provider client is registered.
type ProviderSupport interface {
	Supports(name string) bool
}

// DispatchOptions are forwarded to the asynchronous sync.
type DispatchOptions struct {
	After              *time.Time
	ExternalActivityID string
}

// Dispatcher validates sync preconditions, records a queued sync run and enqueues the job.
type Dispatcher struct {
	allowed     map[string]struct{}
	providers   ProviderSupport
	connections domain.ConnectionStore
	runs        domain.SyncRunStore
	queue       domain.JobQueue
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger
}

// NewDispatcher constructs a Dispatcher. An empty allow-list accepts every registered provider.
func NewDispatcher(allowList []string, providers ProviderSupport, connections domain.ConnectionStore, runs domain.SyncRunStore, queue domain.JobQueue, opts ...Option) *Dispatcher {
	o := buildOptions(opts)
	allowed := make(map[string]struct{}, len(allowList))
	for _, name := range allowList {
		allowed[provider.Normalize(name)] = struct{}{}
	}
	return &Dispatcher{
		allowed:     allowed,
		providers:   providers,
		connections: connections,
		runs:        runs,
		queue:       queue,
		now:         o.now,
		newID:       o.newID,
		logger:      o.logger,
	}
}

// Dispatch queues a sync for the athlete and returns the queued run without waiting for it.
func (d *Dispatcher) Dispatch(ctx context.Context, athleteID, providerName string, opts DispatchOptions) (domain.SyncRun, error) {
	name := provider.Normalize(providerName)
	run, err := d.dispatch(ctx, athleteID, name, opts)
	if err != nil {
		observability.RecordDispatch(name, "rejected")
		return domain.SyncRun{}, err
	}
	observability.RecordDispatch(name, "queued")
	return run, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, athleteID, name string, opts DispatchOptions) (domain.SyncRun, error) {
	if !d.allows(name) {
		return domain.SyncRun{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, name)
	}

	conn, err := d.connections.EnsureFromLegacy(ctx, athleteID, name)
	if err != nil {
		return domain.SyncRun{}, fmt.Errorf("ensure connection: %w", err)
	}
	if !conn.HasAccessToken() {
		return domain.SyncRun{}, fmt.Errorf("%w: athlete %s, provider %s", domain.ErrTokenMissing, athleteID, name)
	}

	run := domain.SyncRun{
		ID:        d.newID(),
		AthleteID: athleteID,
		Provider:  name,
		Status:    domain.SyncStatusQueued,
		QueuedAt:  d.now(),
	}
	if err := d.runs.CreateSyncRun(ctx, run); err != nil {
		return domain.SyncRun{}, fmt.Errorf("create sync run: %w", err)
	}
	if err := d.connections.MarkSyncQueued(ctx, athleteID, name); err != nil {
		return domain.SyncRun{}, fmt.Errorf("mark connection queued: %w", err)
	}

	job := domain.SyncJob{
		AthleteID:          athleteID,
		Provider:           name,
		SyncRunID:          run.ID,
		After:              opts.After,
		ExternalActivityID: opts.ExternalActivityID,
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.abandon(ctx, run, err)
		return domain.SyncRun{}, fmt.Errorf("enqueue sync: %w", err)
	}

	d.logger.Info("sync queued",
		zap.String("athlete_id", athleteID),
		zap.String("provider", name),
		zap.String("sync_run_id", run.ID))
	return run, nil
}

func (d *Dispatcher) allows(name string) bool {
	if len(d.allowed) > 0 {
		if _, ok := d.allowed[name]; !ok {
			return false
		}
	}
	return d.providers.Supports(name)
}

// abandon records a run that never reached the queue so it does not stay queued forever.
func (d *Dispatcher) abandon(ctx context.Context, run domain.SyncRun, cause error) {
	recordCtx := context.WithoutCancel(ctx)
	reason := "enqueue failed: " + cause.Error()
	if err := d.runs.TransitionSyncRun(recordCtx, run.ID, domain.SyncRunTransition{
		Status: domain.SyncStatusFailed,
		Reason: reason,
		At:     d.now(),
	}); err != nil {
		d.logger.Error("recording abandoned sync run", zap.String("sync_run_id", run.ID), zap.Error(err))
	}
	if err := d.connections.MarkSyncFailure(recordCtx, run.AthleteID, run.Provider, reason); err != nil {
		d.logger.Error("recording abandoned sync on connection", zap.String("sync_run_id", run.ID), zap.Error(err))
	}
}
