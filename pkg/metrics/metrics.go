// Package metrics provides Prometheus instrumentation for dispatch managers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dispatch"

// Registry holds all metric instances for dispatch managers.
// Every vector is labelled by manager and category.
type Registry struct {
	// Job lifecycle
	JobsSubmitted *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	// Attempts
	AttemptErrors   *prometheus.CounterVec
	AttemptTimeouts *prometheus.CounterVec
	Retries         *prometheus.CounterVec

	// Pools
	WorkerCrashes *prometheus.CounterVec
	PoolSize      *prometheus.GaugeVec
	ActiveWorkers *prometheus.GaugeVec
	QueueDepth    *prometheus.GaugeVec
}

var labelNames = []string{"manager", "category"}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace, nil)
}

func newRegistry(reg prometheus.Registerer, namespace string, constLabels prometheus.Labels) *Registry {
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        name,
				Help:        help,
				ConstLabels: constLabels,
			},
			labelNames,
		)
	}
	gauge := func(subsystem, name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   subsystem,
				Name:        name,
				Help:        help,
				ConstLabels: constLabels,
			},
			labelNames,
		)
	}

	return &Registry{
		JobsSubmitted: counter("jobs", "submitted_total", "Total number of jobs submitted"),
		JobsCompleted: counter("jobs", "completed_total", "Total number of jobs completed successfully"),
		JobsFailed:    counter("jobs", "failed_total", "Total number of jobs rejected after exhausting retries"),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "jobs",
				Name:        "duration_seconds",
				Help:        "Worker-reported processing time of successful attempts",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			labelNames,
		),

		AttemptErrors:   counter("attempts", "errors_total", "Total number of attempts that reported an error"),
		AttemptTimeouts: counter("attempts", "timeouts_total", "Total number of attempts that timed out"),
		Retries:         counter("attempts", "retries_total", "Total number of retried attempts"),

		WorkerCrashes: counter("workers", "crashes_total", "Total number of crashed execution contexts"),
		PoolSize:      gauge("pool", "size", "Current worker pool size"),
		ActiveWorkers: gauge("pool", "active_workers", "Number of busy workers"),
		QueueDepth:    gauge("queue", "depth", "Number of jobs waiting for an idle worker"),
	}
}
