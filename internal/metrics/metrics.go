// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, matcher, and task orchestrator. Grounded on
// apps/rag-loader/internal/metrics/metrics.go's promauto-registered struct
// shape and apps/edge-mcp/internal/metrics/metrics.go's naming convention.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram/gauge this core exports.
type Metrics struct {
	SnapshotsIngested  prometheus.Counter
	IngestionErrors    prometheus.Counter
	IngestionDuration  prometheus.Histogram
	DependenciesPerBOM prometheus.Histogram

	MatcherRunDuration  prometheus.Histogram
	MatcherAlertsOpened prometheus.Counter
	MatcherAlertsClosed prometheus.Counter

	TaskRunDuration prometheus.HistogramVec
	TaskRunsTotal   prometheus.CounterVec
	TaskFailures    prometheus.CounterVec

	AdvisoryDBSyncDuration prometheus.Histogram
	AdvisoryDBVersion      prometheus.Gauge
}

// New builds and registers every metric against the default registry.
func New() *Metrics {
	return &Metrics{
		SnapshotsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "konarr_snapshots_ingested_total",
			Help: "Total number of SBOM snapshots successfully ingested",
		}),
		IngestionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "konarr_ingestion_errors_total",
			Help: "Total number of ingestion pipeline failures",
		}),
		IngestionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "konarr_ingestion_duration_seconds",
			Help:    "Duration of one snapshot's ingestion pipeline",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		DependenciesPerBOM: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "konarr_ingestion_dependencies_count",
			Help:    "Number of components carried by an ingested BOM",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1 to ~8k
		}),

		MatcherRunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "konarr_matcher_run_duration_seconds",
			Help:    "Duration of one matcher run over a snapshot's dependency graph",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		MatcherAlertsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "konarr_matcher_alerts_opened_total",
			Help: "Total number of alerts opened or reopened by the matcher",
		}),
		MatcherAlertsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "konarr_matcher_alerts_closed_total",
			Help: "Total number of alerts transitioned to Secure by the matcher",
		}),

		TaskRunDuration: *promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "konarr_task_run_duration_seconds",
			Help:    "Duration of one orchestrated task run",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		TaskRunsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "konarr_task_runs_total",
			Help: "Total number of orchestrated task runs",
		}, []string{"task"}),
		TaskFailures: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "konarr_task_failures_total",
			Help: "Total number of orchestrated task failures",
		}, []string{"task"}),

		AdvisoryDBSyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "konarr_advisorydb_sync_duration_seconds",
			Help:    "Duration of the advisory database sync task",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		AdvisoryDBVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "konarr_advisorydb_schema_version",
			Help: "Schema version of the currently installed advisory database",
		}),
	}
}

// ObserveIngestion records one ingestion pipeline run's outcome.
func (m *Metrics) ObserveIngestion(dependencyCount int, duration time.Duration, err error) {
	m.IngestionDuration.Observe(duration.Seconds())
	m.DependenciesPerBOM.Observe(float64(dependencyCount))
	if err != nil {
		m.IngestionErrors.Inc()
		return
	}
	m.SnapshotsIngested.Inc()
}

// ObserveMatcherRun records one matcher pass's duration and alert deltas.
func (m *Metrics) ObserveMatcherRun(duration time.Duration, opened, closed int) {
	m.MatcherRunDuration.Observe(duration.Seconds())
	m.MatcherAlertsOpened.Add(float64(opened))
	m.MatcherAlertsClosed.Add(float64(closed))
}

// ObserveTaskRun records one orchestrated task's duration and outcome.
func (m *Metrics) ObserveTaskRun(task string, duration time.Duration, err error) {
	m.TaskRunDuration.WithLabelValues(task).Observe(duration.Seconds())
	m.TaskRunsTotal.WithLabelValues(task).Inc()
	if err != nil {
		m.TaskFailures.WithLabelValues(task).Inc()
	}
}
