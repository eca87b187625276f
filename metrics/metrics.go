// ABOUTME: Prometheus collectors for workflow dispatch and pipeline execution telemetry.
// ABOUTME: All helper methods are nil-safe so wiring metrics stays optional in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the dispatcher and worker report into.
type Metrics struct {
	workflowsStarted   *prometheus.CounterVec
	workflowsCompleted *prometheus.CounterVec
	workflowsFailed    *prometheus.CounterVec
	pipelineDuration   *prometheus.HistogramVec
	tasksEnqueued      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workflowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrivener_workflows_started_total",
			Help: "Workflows that entered RUNNING, by workflow type.",
		}, []string{"type"}),
		workflowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrivener_workflows_completed_total",
			Help: "Workflows that reached COMPLETED, by workflow type.",
		}, []string{"type"}),
		workflowsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrivener_workflows_failed_total",
			Help: "Workflows that reached FAILED, by workflow type.",
		}, []string{"type"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrivener_pipeline_duration_seconds",
			Help:    "Wall-clock pipeline execution time, by workflow type.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"type"}),
		tasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrivener_tasks_enqueued_total",
			Help: "Async tasks published to the queue.",
		}),
	}
	reg.MustRegister(m.workflowsStarted, m.workflowsCompleted, m.workflowsFailed,
		m.pipelineDuration, m.tasksEnqueued)
	return m
}

// Started records a workflow entering RUNNING.
func (m *Metrics) Started(wfType string) {
	if m == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(wfType).Inc()
}

// Completed records a successful terminal outcome and its duration.
func (m *Metrics) Completed(wfType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.workflowsCompleted.WithLabelValues(wfType).Inc()
	m.pipelineDuration.WithLabelValues(wfType).Observe(elapsed.Seconds())
}

// Failed records a failed terminal outcome and its duration.
func (m *Metrics) Failed(wfType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.workflowsFailed.WithLabelValues(wfType).Inc()
	m.pipelineDuration.WithLabelValues(wfType).Observe(elapsed.Seconds())
}

// Enqueued records an async task publication.
func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.tasksEnqueued.Inc()
}
