package domain

import "time"

// SyncStatus tracks the lifecycle of a sync on both the connection and the sync run.
type SyncStatus string

const (
	SyncStatusQueued  SyncStatus = "queued"
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusFailed
}

// Look-back window applied before a connection's first successful sync.
const (
	DefaultLookbackDays = 90
	MinLookbackDays     = 30
)

// Connection is the per-athlete, per-provider credential and sync state.
type Connection struct {
	AthleteID      string
	Provider       string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	LastSyncedAt   *time.Time
	LastSyncStatus SyncStatus
	LastSyncReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasAccessToken reports whether a non-empty access token is stored.
func (c Connection) HasAccessToken() bool {
	return c.AccessToken != ""
}

// TokenExpired reports whether the access token expiry is known and has passed at now.
func (c Connection) TokenExpired(now time.Time) bool {
	return c.TokenExpiresAt != nil && !c.TokenExpiresAt.After(now)
}

// TokenGrant is the credential set returned by a provider token exchange or refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SyncRun is the append-only audit record of one dispatch.
type SyncRun struct {
	ID            string
	AthleteID     string
	Provider      string
	Status        SyncStatus
	QueuedAt      time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	Reason        string
	ActivityCount int
	LinkFrom      *time.Time // earliest start time among the activities the run persisted
}

// SyncRunTransition is one status change of a sync run.
type SyncRunTransition struct {
	Status   SyncStatus
	Reason   string
	Count    int
	At       time.Time
	LinkFrom *time.Time // left unchanged when nil
}

// SyncRunCursor models the pagination token for sync-run history.
type SyncRunCursor struct {
	QueuedAt time.Time
	ID       string
}

// SyncJob is the unit of asynchronous work handed from the dispatcher to the worker.
type SyncJob struct {
	AthleteID          string
	Provider           string
	SyncRunID          string
	After              *time.Time
	ExternalActivityID string
}

// SyncResult summarises a completed sync.
type SyncResult struct {
	Provider string
	Count    int
	SyncedAt time.Time
	Status   SyncStatus
	LinkFrom *time.Time // nil when no persisted activity had a start time
}
