// Package metrics provides Prometheus instrumentation for dispatch managers.
//
// A Registry is a set of metric vectors created against one Prometheus
// registerer. Pass it to dispatch.Config.Metrics and the manager keeps it up
// to date as jobs move through their lifecycle.
//
// # Quick Start
//
//	reg := prometheus.NewRegistry()
//	m, err := dispatch.New(dispatch.Config{
//		Name:       "vault",
//		Categories: categories,
//		Metrics:    metrics.NewRegistry(reg),
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
//   - dispatch_jobs_submitted_total: jobs accepted by Submit
//   - dispatch_jobs_completed_total: jobs resolved with a result
//   - dispatch_jobs_failed_total: jobs rejected after exhausting retries
//   - dispatch_jobs_duration_seconds: worker-reported processing time
//   - dispatch_attempts_errors_total: attempts that reported an error
//   - dispatch_attempts_timeouts_total: attempts that timed out
//   - dispatch_attempts_retries_total: retried attempts
//   - dispatch_workers_crashes_total: crashed execution contexts
//   - dispatch_pool_size: workers in the category pool
//   - dispatch_pool_active_workers: busy workers
//   - dispatch_queue_depth: jobs waiting for an idle worker
//
// All metrics carry the labels manager and category. Config.Namespace
// replaces the "dispatch" prefix and Config.Labels adds constant labels.
package metrics
