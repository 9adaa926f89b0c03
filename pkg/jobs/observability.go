package jobs

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"backend", "queue", "kind"},
	)

	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_jobs_processed_total",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"queue", "kind", "status"},
	)

	jobsRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courseflow_jobs_retry_total",
			Help: "Total number of job retries scheduled by workers",
		},
		[]string{"queue", "kind"},
	)

	jobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courseflow_jobs_inflight",
			Help: "Current number of in-flight jobs being processed by workers",
		},
		[]string{"queue"},
	)
)

func recordJobEnqueued(backend string, job *Job) {
	if job == nil {
		return
	}
	jobsEnqueuedTotal.WithLabelValues(
		normalizeMetricLabel(backend, "unknown"),
		normalizeMetricLabel(job.Queue, "unknown"),
		normalizeMetricLabel(string(job.Kind), "unknown"),
	).Inc()
}

func recordJobProcessed(queue string, kind Kind, status string) {
	jobsProcessedTotal.WithLabelValues(
		normalizeMetricLabel(queue, "unknown"),
		normalizeMetricLabel(string(kind), "unknown"),
		normalizeMetricLabel(status, "unknown"),
	).Inc()
}

func recordJobRetry(queue string, kind Kind) {
	jobsRetryTotal.WithLabelValues(
		normalizeMetricLabel(queue, "unknown"),
		normalizeMetricLabel(string(kind), "unknown"),
	).Inc()
}

func incrementJobInFlight(queue string) {
	jobsInFlight.WithLabelValues(normalizeMetricLabel(queue, "unknown")).Inc()
}

func decrementJobInFlight(queue string) {
	jobsInFlight.WithLabelValues(normalizeMetricLabel(queue, "unknown")).Dec()
}

func normalizeMetricLabel(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
