package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
)

// RecentLinker auto-links an athlete's unlinked activities started after a point in time.
type RecentLinker interface {
	AutoLinkRecentActivities(ctx context.Context, athleteID, provider string, after *time.Time) (int, error)
}

// CompletionRecorder records the terminal outcome of a tracked sync run.
type CompletionRecorder interface {
	RecordCompleted(ctx context.Context, event events.SyncCompleted) error
}

// Worker executes queued sync jobs: the sync itself, auto-linking of the new activities,
// and the completion event.
type Worker struct {
	sync        *SyncService
	linker      RecentLinker
	completions CompletionRecorder
	now         func() time.Time
	logger      *zap.Logger
}

// NewWorker constructs a Worker. linker and completions may be nil.
func NewWorker(sync *SyncService, linker RecentLinker, completions CompletionRecorder, opts ...Option) *Worker {
	o := buildOptions(opts)
	return &Worker{
		sync:        sync,
		linker:      linker,
		completions: completions,
		now:         o.now,
		logger:      o.logger,
	}
}

// HandleJob runs one job. The returned error is the sync failure, or a failure to auto-link
// or record completion. After a successful sync, unlinked activities starting at or after the
// earliest activity the run persisted are auto-linked. Replaying a job whose run already
// finished repeats linking over that same window and re-records completion.
func (w *Worker) HandleJob(ctx context.Context, job domain.SyncJob) (events.SyncCompleted, error) {
	event := events.SyncCompleted{
		SyncRunID: job.SyncRunID,
		AthleteID: job.AthleteID,
		Provider:  job.Provider,
	}

	result, syncErr := w.sync.Sync(ctx, job.AthleteID, job.Provider, SyncOptions{
		SyncRunID:          job.SyncRunID,
		After:              job.After,
		ExternalActivityID: job.ExternalActivityID,
	})
	event.Status = string(result.Status)
	event.ActivityCount = result.Count
	event.FinishedAt = w.now()
	if syncErr != nil {
		event.Reason = syncErr.Error()
	}

	// A redelivered job gets the window stored on its finished run.
	if syncErr == nil && result.Status == domain.SyncStatusSuccess && result.LinkFrom != nil && w.linker != nil {
		after := result.LinkFrom.Add(-time.Microsecond)
		linked, err := w.linker.AutoLinkRecentActivities(ctx, job.AthleteID, job.Provider, &after)
		if err != nil {
			return event, fmt.Errorf("auto-link after sync: %w", err)
		}
		event.LinkedCount = linked
	}

	if job.SyncRunID != "" && w.completions != nil {
		if err := w.completions.RecordCompleted(context.WithoutCancel(ctx), event); err != nil {
			return event, fmt.Errorf("record sync completion: %w", err)
		}
	}

	w.logger.Info("sync job handled",
		zap.String("athlete_id", job.AthleteID),
		zap.String("provider", job.Provider),
		zap.String("sync_run_id", job.SyncRunID),
		zap.String("status", event.Status),
		zap.Int("count", event.ActivityCount),
		zap.Int("linked", event.LinkedCount))
	return event, syncErr
}

// Run handles jobs from an in-process queue until ctx is cancelled or jobs is closed.
func (w *Worker) Run(ctx context.Context, jobs <-chan domain.SyncJob) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			if _, err := w.HandleJob(ctx, job); err != nil {
				w.logger.Warn("sync job failed",
					zap.String("athlete_id", job.AthleteID),
					zap.String("sync_run_id", job.SyncRunID),
					zap.Error(err))
			}
		}
	}
}
