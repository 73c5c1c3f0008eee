package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of messages left uncommitted after handler errors.",
	}, []string{"topic", "event_type"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Number of in-process handler retries.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "consumer",
		Name:      "jobs_skipped_total",
		Help:      "Sync jobs committed without a retry, labeled by reason.",
	}, []string{"reason"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_sync",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, retryCounter, decodeErrorCounter, skippedCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordRetry(msg Message) {
	retryCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordSkipped(reason string) {
	skippedCounter.WithLabelValues(reason).Inc()
}
