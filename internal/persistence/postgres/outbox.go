package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/events"
)

// Topics routes outbox events to Kafka topics.
type Topics struct {
	SyncRequests string
	SyncEvents   string
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{SyncRequests: "sync_requests", SyncEvents: "sync_events"}
}

// Outbox records events in the transactional outbox table for the dispatcher to publish.
// It implements domain.JobQueue.
type Outbox struct {
	pool   *pgxpool.Pool
	topics Topics
}

var _ domain.JobQueue = (*Outbox)(nil)

// NewOutbox constructs an Outbox.
func NewOutbox(pool *pgxpool.Pool, topics Topics) *Outbox {
	return &Outbox{pool: pool, topics: topics}
}

// Enqueue records a sync.requested event for the job.
func (o *Outbox) Enqueue(ctx context.Context, job domain.SyncJob) error {
	return o.insert(ctx, outboxRecord{
		athleteID:    job.AthleteID,
		aggregateID:  job.SyncRunID,
		eventType:    events.SyncRequestedType,
		topic:        o.topics.SyncRequests,
		partitionKey: partitionKey(job.AthleteID, job.Provider),
		payload:      events.NewSyncRequested(job),
	})
}

// RecordCompleted records a sync.completed event. Recording the same run twice is a no-op.
func (o *Outbox) RecordCompleted(ctx context.Context, event events.SyncCompleted) error {
	return o.insert(ctx, outboxRecord{
		athleteID:    event.AthleteID,
		aggregateID:  event.SyncRunID,
		eventType:    events.SyncCompletedType,
		topic:        o.topics.SyncEvents,
		partitionKey: partitionKey(event.AthleteID, event.Provider),
		payload:      event,
	})
}

type outboxRecord struct {
	athleteID    string
	aggregateID  string
	eventType    string
	topic        string
	partitionKey string
	payload      any
}

func (o *Outbox) insert(ctx context.Context, rec outboxRecord) error {
	body, err := json.Marshal(rec.payload)
	if err != nil {
		return err
	}

	var dedupeKey any
	if rec.aggregateID != "" {
		dedupeKey = fmt.Sprintf("%s:%s", rec.aggregateID, rec.eventType)
	}

	const stmt = `INSERT INTO outbox (athlete_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = o.pool.Exec(ctx, stmt,
		rec.athleteID,
		"sync_run",
		rec.aggregateID,
		rec.eventType,
		rec.topic,
		rec.topic+"-value",
		rec.partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func partitionKey(athleteID, provider string) string {
	return fmt.Sprintf("%s:%s", athleteID, provider)
}
