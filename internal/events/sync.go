// Package events defines the payloads exchanged through the outbox and Kafka.
package events

import (
	"time"

	"example.com/activitysync/internal/domain"
)

// Event types carried in the outbox and the Kafka event_type header.
const (
	SyncRequestedType = "sync.requested"
	SyncCompletedType = "sync.completed"
)

// SyncRequested asks the worker to run one provider sync.
type SyncRequested struct {
	SyncRunID          string     `json:"sync_run_id"`
	AthleteID          string     `json:"athlete_id"`
	Provider           string     `json:"provider"`
	After              *time.Time `json:"after,omitempty"`
	ExternalActivityID string     `json:"external_activity_id,omitempty"`
}

// NewSyncRequested builds the event for a queued job.
func NewSyncRequested(job domain.SyncJob) SyncRequested {
	return SyncRequested{
		SyncRunID:          job.SyncRunID,
		AthleteID:          job.AthleteID,
		Provider:           job.Provider,
		After:              job.After,
		ExternalActivityID: job.ExternalActivityID,
	}
}

// Job converts the event back into the job it was built from.
func (e SyncRequested) Job() domain.SyncJob {
	return domain.SyncJob{
		AthleteID:          e.AthleteID,
		Provider:           e.Provider,
		SyncRunID:          e.SyncRunID,
		After:              e.After,
		ExternalActivityID: e.ExternalActivityID,
	}
}

// SyncCompleted reports the terminal state of a sync run.
type SyncCompleted struct {
	SyncRunID     string    `json:"sync_run_id"`
	AthleteID     string    `json:"athlete_id"`
	Provider      string    `json:"provider"`
	Status        string    `json:"status"`
	ActivityCount int       `json:"activity_count"`
	LinkedCount   int       `json:"linked_count"`
	Reason        string    `json:"reason,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}
