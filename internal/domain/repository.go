package domain

import (
	"context"
	"time"
)

// ConnectionStore persists provider connections.
type ConnectionStore interface {
	// EnsureFromLegacy returns the connection, creating it first and migrating any legacy
	// per-athlete token columns into it when no row exists yet.
	EnsureFromLegacy(ctx context.Context, athleteID, provider string) (Connection, error)
	// Find returns nil when no connection exists.
	Find(ctx context.Context, athleteID, provider string) (*Connection, error)
	Upsert(ctx context.Context, conn Connection) error
	MarkSyncQueued(ctx context.Context, athleteID, provider string) error
	MarkSyncRunning(ctx context.Context, athleteID, provider string) error
	MarkSyncSuccess(ctx context.Context, athleteID, provider string, syncedAt time.Time) error
	MarkSyncFailure(ctx context.Context, athleteID, provider, reason string) error
	Disconnect(ctx context.Context, athleteID, provider string) error
}

// SyncRunStore persists the sync-run audit trail.
type SyncRunStore interface {
	CreateSyncRun(ctx context.Context, run SyncRun) error
	// GetSyncRun returns nil when the run does not exist.
	GetSyncRun(ctx context.Context, id string) (*SyncRun, error)
	// TransitionSyncRun moves a run to status. Terminal runs return ErrSyncRunTerminal.
	TransitionSyncRun(ctx context.Context, id string, t SyncRunTransition) error
	ListSyncRuns(ctx context.Context, athleteID, provider string, cursor *SyncRunCursor, limit int) ([]SyncRun, *SyncRunCursor, error)
}

// ActivityStore persists external activities.
type ActivityStore interface {
	// FindActivityByKey looks up the natural key including soft-deleted rows; nil when absent.
	FindActivityByKey(ctx context.Context, athleteID, provider, externalID string) (*ExternalActivity, error)
	InsertActivity(ctx context.Context, activity *ExternalActivity) error
	UpdateActivity(ctx context.Context, activity *ExternalActivity) error
	// ListUnlinkedActivities returns live, dated, unlinked activities ordered by start time ascending.
	ListUnlinkedActivities(ctx context.Context, filter ActivityFilter) ([]ExternalActivity, error)
	// LinkActivity attaches the activity to the session when both are still unlinked.
	LinkActivity(ctx context.Context, activityID, sessionID int64) (bool, error)
}

// SessionStore reads planned sessions.
type SessionStore interface {
	// ListSessionsOn returns the athlete's sessions scheduled on date (YYYY-MM-DD) ordered by id.
	ListSessionsOn(ctx context.Context, athleteID, date string) ([]PlannedSession, error)
	// GetSession returns the session with its linked activity preloaded; nil when absent.
	GetSession(ctx context.Context, athleteID string, sessionID int64) (*PlannedSession, error)
}

// ProfileStore reads athlete profiles.
type ProfileStore interface {
	// GetProfile returns nil when the athlete has no profile.
	GetProfile(ctx context.Context, athleteID string) (*AthleteProfile, error)
}

// JobQueue hands sync jobs to asynchronous execution.
type JobQueue interface {
	Enqueue(ctx context.Context, job SyncJob) error
}
