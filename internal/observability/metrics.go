// Package observability holds the Prometheus collectors of the sync pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_sync",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent external activity persisted.",
	})
	lastSyncGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_sync",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync per provider.",
	}, []string{"provider"})

	activitiesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "persistence",
		Name:      "activities_persisted_total",
		Help:      "External activities written, labeled by provider and outcome (inserted, updated, restored).",
	}, []string{"provider", "outcome"})

	syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync executions by provider and terminal status.",
	}, []string{"provider", "status"})

	syncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "activity_sync",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Wall time of a sync execution.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider"})

	dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "dispatch",
		Name:      "requests_total",
		Help:      "Sync dispatch attempts by provider and result.",
	}, []string{"provider", "result"})

	linkDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "autolink",
		Name:      "decisions_total",
		Help:      "Auto-link attempts by outcome.",
	}, []string{"outcome"})

	tssResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_sync",
		Subsystem: "actuals",
		Name:      "tss_resolutions_total",
		Help:      "Training-load resolutions by the rule that produced the value.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, lastSyncGauge, activitiesPersisted, syncRuns, syncDuration,
		dispatches, linkDecisions, tssResolutions)
}

// RecordActivityPersisted counts a persisted activity and moves the persistence watermark.
func RecordActivityPersisted(provider, outcome string, ts time.Time) {
	activitiesPersisted.WithLabelValues(provider, outcome).Inc()
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordSync counts a finished sync and observes its duration.
func RecordSync(provider, status string, started, finished time.Time) {
	syncRuns.WithLabelValues(provider, status).Inc()
	syncDuration.WithLabelValues(provider).Observe(finished.Sub(started).Seconds())
	if status == "success" {
		lastSyncGauge.WithLabelValues(provider).Set(float64(finished.Unix()))
	}
}

// RecordDispatch counts a dispatch attempt.
func RecordDispatch(provider, result string) {
	dispatches.WithLabelValues(provider, result).Inc()
}

// RecordLinkDecision counts an auto-link outcome.
func RecordLinkDecision(outcome string) {
	linkDecisions.WithLabelValues(outcome).Inc()
}

// RecordTSSResolution counts which rule resolved a training load.
func RecordTSSResolution(source string) {
	tssResolutions.WithLabelValues(source).Inc()
}

// SyncRuns exposes the run counter for assertions in tests.
func SyncRuns() *prometheus.CounterVec { return syncRuns }

// ActivitiesPersisted exposes the persistence counter for assertions in tests.
func ActivitiesPersisted() *prometheus.CounterVec { return activitiesPersisted }

// LinkDecisions exposes the auto-link counter for assertions in tests.
func LinkDecisions() *prometheus.CounterVec { return linkDecisions }
