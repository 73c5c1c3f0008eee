package consumer

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
)

// JobRunner executes one sync job.
type JobRunner interface {
	HandleJob(ctx context.Context, job domain.SyncJob) (events.SyncCompleted, error)
}

// SyncJobHandler decodes sync.requested events and runs them. Retryable failures are
// returned so the message stays uncommitted; everything else is logged and committed.
type SyncJobHandler struct {
	runner JobRunner
	logger *zap.Logger
}

// NewSyncJobHandler constructs a SyncJobHandler.
func NewSyncJobHandler(runner JobRunner, logger *zap.Logger) *SyncJobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncJobHandler{runner: runner, logger: logger}
}

// Handle implements Handler.
func (h *SyncJobHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.SyncRequestedType {
		h.logger.Debug("ignoring event", zap.String("event_type", msg.EventType))
		recordSkipped("event_type")
		return nil
	}

	var req events.SyncRequested
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.AthleteID == "" || req.Provider == "" {
		h.logger.Warn("dropping malformed sync request", zap.Int64("offset", msg.Offset), zap.Error(err))
		recordSkipped("malformed")
		return nil
	}

	_, err := h.runner.HandleJob(ctx, req.Job())
	switch {
	case err == nil:
		return nil
	case domain.IsRetryable(err):
		return err
	default:
		h.logger.Warn("sync job failed permanently",
			zap.String("athlete_id", req.AthleteID),
			zap.String("provider", req.Provider),
			zap.String("sync_run_id", req.SyncRunID),
			zap.Bool("reconnect_required", domain.IsReconnectRequired(err)),
			zap.Error(err))
		recordSkipped("permanent")
		return nil
	}
}
