/*
Package dispatch is a Go library for running work on category worker pools
with timeouts, retries and crash recovery.

Packages:
  - pkg/dispatch: Manager, worker pools, job queue and statistics
  - pkg/metrics: Prometheus metrics for dispatch managers
  - pkg/statsink: Redis storage for periodic statistics snapshots

Example usage:

	import (
		"github.com/vnykmshr/dispatch/pkg/dispatch"
		"github.com/vnykmshr/dispatch/pkg/statsink"
	)

	sink, _ := statsink.NewFromURL("redis://localhost:6379/0")
	m, _ := dispatch.New(dispatch.Config{
		Categories: categories,
		Reporters:  []dispatch.StatsReporter{sink},
	})
	defer func() { <-m.Shutdown() }()

	result, err := m.Execute(ctx, "fileProcessor", "hash", data)
*/
package dispatch
