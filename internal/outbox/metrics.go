package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a dispatched or dead-lettered sync event.
const (
	resultDelivered    = "delivered"
	resultDeadLettered = "dead_lettered"

	outcomeRequeued       = "requeued"
	outcomeQuarantined    = "quarantined"
	outcomeRetryScheduled = "retry_scheduled"
)

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Sync events leaving the outbox, by event type and result.",
	}, []string{"event_type", "result"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_sync",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, publishing and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqEntriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead-lettered sync events handled by the DLQ manager, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_sync",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Dead-lettered sync events not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(eventsCounter, batchDuration, dlqEntriesCounter, dlqBacklogGauge)
}

func recordEvents(messages []Message, result string) {
	for _, msg := range messages {
		eventsCounter.WithLabelValues(msg.EventType, result).Inc()
	}
}

func recordDLQ(entry dlqEntry, outcome string) {
	dlqEntriesCounter.WithLabelValues(entry.EventType, outcome).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
