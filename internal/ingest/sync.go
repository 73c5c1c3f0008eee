package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/observability"
	"example.com/activitysync/internal/provider"
)

const (
	// PageSize is the number of activities requested per provider page. A shorter page ends the sync.
	PageSize = 200
)

// AccessTokenSource yields a valid provider access token for an athlete.
type AccessTokenSource interface {
	ValidAccessToken(ctx context.Context, athleteID, providerName string) (string, error)
}

// ClientResolver resolves the activity client of a provider.
type ClientResolver interface {
	Provider(name string) (provider.Client, error)
}

// SyncOptions narrows a single sync execution.
type SyncOptions struct {
	SyncRunID          string
	After              *time.Time
	ExternalActivityID string
}

// SyncService runs one full provider sync for an athlete.
type SyncService struct {
	connections domain.ConnectionStore
	runs        domain.SyncRunStore
	tokens      AccessTokenSource
	providers   ClientResolver
	persister   *Persister
	lookback    time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewSyncService constructs a SyncService. lookbackDays below domain.MinLookbackDays is raised
// to it; zero selects domain.DefaultLookbackDays.
func NewSyncService(connections domain.ConnectionStore, runs domain.SyncRunStore, tokens AccessTokenSource, providers ClientResolver, persister *Persister, lookbackDays int, opts ...Option) *SyncService {
	o := buildOptions(opts)
	return &SyncService{
		connections: connections,
		runs:        runs,
		tokens:      tokens,
		providers:   providers,
		persister:   persister,
		lookback:    time.Duration(LookbackDays(lookbackDays)) * 24 * time.Hour,
		now:         o.now,
		logger:      o.logger,
	}
}

// LookbackDays applies the default and the floor to a configured look-back window.
func LookbackDays(days int) int {
	if days == 0 {
		return domain.DefaultLookbackDays
	}
	if days < domain.MinLookbackDays {
		return domain.MinLookbackDays
	}
	return days
}

// Sync pages through the provider and persists every activity. Any failure aborts the run,
// is recorded on the connection and the sync run, and is returned. Pages persisted before the
// failure are kept.
func (s *SyncService) Sync(ctx context.Context, athleteID, providerName string, opts SyncOptions) (domain.SyncResult, error) {
	started := s.now()
	logger := s.logger.With(
		zap.String("athlete_id", athleteID),
		zap.String("provider", providerName),
		zap.String("sync_run_id", opts.SyncRunID))

	if opts.SyncRunID != "" {
		run, err := s.runs.GetSyncRun(ctx, opts.SyncRunID)
		if err != nil {
			return s.fail(ctx, logger, athleteID, providerName, "", progress{}, started, err)
		}
		switch {
		case run == nil:
			logger.Warn("sync run not found, syncing without run tracking")
			opts.SyncRunID = ""
		case run.Status.Terminal():
			// Redelivered job: the run already finished and stays immutable.
			logger.Info("skipping finished sync run", zap.String("status", string(run.Status)))
			return domain.SyncResult{Provider: providerName, Count: run.ActivityCount, Status: run.Status, LinkFrom: run.LinkFrom}, nil
		}
	}

	if err := s.markRunning(ctx, athleteID, providerName, opts.SyncRunID, started); err != nil {
		return s.fail(ctx, logger, athleteID, providerName, opts.SyncRunID, progress{}, started, err)
	}

	prog, err := s.run(ctx, logger, athleteID, providerName, opts)
	if err != nil {
		return s.fail(ctx, logger, athleteID, providerName, opts.SyncRunID, prog, started, err)
	}

	syncedAt := s.now()
	if err := s.connections.MarkSyncSuccess(ctx, athleteID, providerName, syncedAt); err != nil {
		return s.fail(ctx, logger, athleteID, providerName, opts.SyncRunID, prog, started, err)
	}
	if opts.SyncRunID != "" {
		if err := s.runs.TransitionSyncRun(ctx, opts.SyncRunID, domain.SyncRunTransition{
			Status:   domain.SyncStatusSuccess,
			Count:    prog.count,
			At:       syncedAt,
			LinkFrom: prog.linkFrom,
		}); err != nil {
			logger.Warn("sync run transition failed", zap.Error(err))
		}
	}

	observability.RecordSync(providerName, string(domain.SyncStatusSuccess), started, syncedAt)
	logger.Info("sync completed", zap.Int("count", prog.count), zap.Duration("elapsed", syncedAt.Sub(started)))
	return domain.SyncResult{
		Provider: providerName,
		Count:    prog.count,
		SyncedAt: syncedAt,
		Status:   domain.SyncStatusSuccess,
		LinkFrom: prog.linkFrom,
	}, nil
}

// progress accumulates what one run persisted.
type progress struct {
	count    int
	linkFrom *time.Time
}

func (p *progress) add(activities ...domain.ExternalActivity) {
	for _, a := range activities {
		p.count++
		if !a.HasStartTime() {
			continue
		}
		if p.linkFrom == nil || a.StartedAt.Before(*p.linkFrom) {
			start := a.StartedAt
			p.linkFrom = &start
		}
	}
}

func (s *SyncService) markRunning(ctx context.Context, athleteID, providerName, runID string, at time.Time) error {
	if err := s.connections.MarkSyncRunning(ctx, athleteID, providerName); err != nil {
		return err
	}
	if runID == "" {
		return nil
	}
	return s.runs.TransitionSyncRun(ctx, runID, domain.SyncRunTransition{Status: domain.SyncStatusRunning, At: at})
}

func (s *SyncService) run(ctx context.Context, logger *zap.Logger, athleteID, providerName string, opts SyncOptions) (progress, error) {
	var prog progress
	token, err := s.tokens.ValidAccessToken(ctx, athleteID, providerName)
	if err != nil {
		return prog, err
	}
	client, err := s.providers.Provider(providerName)
	if err != nil {
		return prog, err
	}

	if opts.ExternalActivityID != "" {
		if fetcher, ok := client.(provider.SingleActivityFetcher); ok {
			return s.syncOne(ctx, fetcher, token, athleteID, opts.ExternalActivityID)
		}
	}

	since, err := s.watermark(ctx, athleteID, providerName, opts.After)
	if err != nil {
		return prog, err
	}
	logger.Debug("sync watermark", zap.Time("after", since))

	for page := 1; ; page++ {
		batch, err := client.FetchActivities(ctx, token, provider.FetchParams{After: since, Page: page, PerPage: PageSize})
		if err != nil {
			return prog, fmt.Errorf("fetch page %d: %w", page, asProviderError(err))
		}

		persisted, err := s.persister.PersistMany(ctx, athleteID, batch)
		prog.add(persisted...)
		if err != nil {
			return prog, fmt.Errorf("persist page %d: %w", page, err)
		}

		if len(batch) < PageSize {
			return prog, nil
		}
	}
}

func (s *SyncService) syncOne(ctx context.Context, fetcher provider.SingleActivityFetcher, token, athleteID, externalID string) (progress, error) {
	var prog progress
	fetched, err := fetcher.FetchActivity(ctx, token, externalID)
	if err != nil {
		return prog, fmt.Errorf("fetch activity %s: %w", externalID, asProviderError(err))
	}
	activity, err := s.persister.Persist(ctx, athleteID, fetched)
	if err != nil {
		return prog, err
	}
	prog.add(activity)
	return prog, nil
}

// watermark picks the timestamp after which activities are fetched.
func (s *SyncService) watermark(ctx context.Context, athleteID, providerName string, after *time.Time) (time.Time, error) {
	if after != nil {
		return *after, nil
	}
	conn, err := s.connections.Find(ctx, athleteID, providerName)
	if err != nil {
		return time.Time{}, err
	}
	if conn != nil && conn.LastSyncedAt != nil {
		return *conn.LastSyncedAt, nil
	}
	return s.now().Add(-s.lookback), nil
}

func (s *SyncService) fail(ctx context.Context, logger *zap.Logger, athleteID, providerName, runID string, prog progress, started time.Time, cause error) (domain.SyncResult, error) {
	// The failure must be recorded even when the caller's context was cancelled.
	recordCtx := context.WithoutCancel(ctx)
	finished := s.now()
	reason := cause.Error()

	if err := s.connections.MarkSyncFailure(recordCtx, athleteID, providerName, reason); err != nil {
		logger.Error("recording sync failure on connection", zap.Error(err))
	}
	if runID != "" {
		if err := s.runs.TransitionSyncRun(recordCtx, runID, domain.SyncRunTransition{
			Status:   domain.SyncStatusFailed,
			Reason:   reason,
			Count:    prog.count,
			At:       finished,
			LinkFrom: prog.linkFrom,
		}); err != nil {
			logger.Error("recording sync failure on run", zap.Error(err))
		}
	}

	observability.RecordSync(providerName, string(domain.SyncStatusFailed), started, finished)
	logger.Warn("sync failed", zap.Int("count", prog.count), zap.Error(cause))
	return domain.SyncResult{
		Provider: providerName,
		Count:    prog.count,
		Status:   domain.SyncStatusFailed,
		LinkFrom: prog.linkFrom,
	}, cause
}

// asProviderError tags untyped client errors as provider request failures.
func asProviderError(err error) error {
	if errors.Is(err, domain.ErrProviderRequest) || errors.Is(err, domain.ErrProviderUnauthorized) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrProviderRequest, err)
}
