// Package consumer reads sync jobs from Kafka and hands them to the ingest worker.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/activitysync/internal/outbox"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka. A returned error leaves the message uncommitted.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AthleteID     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetry makes the processor call the handler up to attempts times per message,
// sleeping backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   zap.NewNop(),
		attempts: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Warn("fetch failed", zap.Error(err))
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn("decode failed",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(decodeErr))
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Warn("commit after decode failure", zap.Error(commitErr))
			}
			continue
		}

		if handleErr := p.handle(ctx, event); handleErr != nil {
			p.logger.Error("handler failed, leaving message uncommitted",
				zap.String("event_type", event.EventType),
				zap.String("athlete_id", event.AthleteID),
				zap.Int64("offset", event.Offset),
				zap.Error(handleErr))
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Warn("commit failed", zap.Error(commitErr))
		} else {
			recordProcessed(event)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		recordRetry(msg)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(p.backoff):
		}
	}
	return err
}

func decodeMessage(msg kafka.Message) (Message, error) {
	schemaID, payload, err := outbox.DecodeWireFormat(msg.Value)
	if err != nil {
		return Message{}, err
	}

	eventType, ok := headerValue(msg, outbox.HeaderEventType)
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	athleteID, _ := headerValue(msg, outbox.HeaderAthleteID)
	schemaSubject, _ := headerValue(msg, outbox.HeaderSchemaSubject)

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		AthleteID:     string(athleteID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       json.RawMessage(append([]byte(nil), payload...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
