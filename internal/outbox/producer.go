package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes outbox records through one writer shared by every topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer. Records are balanced by key so every
// athlete:provider pair lands on one partition and its sync jobs are consumed in order.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for i := range msgs {
		msgs[i].Topic = topic
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes pending records and releases the writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
