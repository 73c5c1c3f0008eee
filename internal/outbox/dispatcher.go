// Package outbox delivers events recorded in the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka headers set on every published record.
const (
	HeaderEventType     = "event_type"
	HeaderAthleteID     = "athlete_id"
	HeaderSchemaSubject = "schema_subject"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher drains the outbox table and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	logger           *zap.Logger
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		logger:           zap.NewNop(),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.logger.Warn("outbox delivery failed, routing batch to dlq",
			zap.Int("events", len(messages)),
			zap.Error(err),
		)
		if dlqErr := d.moveToDLQ(ctx, messages, err.Error()); dlqErr != nil {
			return dlqErr
		}
		recordEvents(messages, resultDeadLettered)
		return d.markPublished(ctx, messages)
	}

	recordEvents(messages, resultDelivered)
	return d.markPublished(ctx, messages)
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) (messages []Message, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || len(messages) == 0 {
			_ = tx.Rollback(ctx)
		}
	}()

	const query = `SELECT event_id, athlete_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.AthleteID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.EventID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	order := make([]string, 0)

	for _, msg := range messages {
		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(msg.EventType)},
				{Key: HeaderAthleteID, Value: []byte(msg.AthleteID)},
				{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
			},
		}

		if _, exists := batches[msg.Topic]; !exists {
			order = append(order, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return fmt.Errorf("write %s: %w", topic, err)
		}
	}
	return nil
}

func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	schema, ok := schemaCatalog[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	cacheKey := msg.SchemaSubject + "::" + msg.EventType
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}

	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids)
	return err
}

// moveToDLQ records every message of a failed batch in outbox_dlq, due for an immediate retry.
func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(`INSERT INTO outbox_dlq (athlete_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
			msg.AthleteID, msg.EventID, msg.EventType, msg.Topic, msg.Payload,
			fmt.Sprintf("%s (topic=%s)", reason, msg.Topic),
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey)
	}
	return d.pool.SendBatch(ctx, batch).Close()
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	AthleteID     string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// encodeWireFormat applies Confluent framing: a zero magic byte, the big-endian schema id, then the payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// DecodeWireFormat strips Confluent framing and returns the schema id and payload.
func DecodeWireFormat(frame []byte) (int, []byte, error) {
	if len(frame) < 5 || frame[0] != 0 {
		return 0, nil, errors.New("outbox: value is not schema registry framed")
	}
	return int(binary.BigEndian.Uint32(frame[1:5])), frame[5:], nil
}
