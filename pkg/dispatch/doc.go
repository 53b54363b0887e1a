/*
Package dispatch runs named operations on fixed pools of workers, one pool per
category, with per-attempt timeouts, bounded retries and crash recovery.

Basic usage:

	m, err := dispatch.New(dispatch.Config{
		Categories: []dispatch.Category{{
			Name:       "fileProcessor",
			PoolSize:   4,
			MaxRetries: 3,
			Timeout:    30 * time.Second,
			Handlers: dispatch.Handlers{
				"hash": hashFile,
			},
		}},
	})
	if err != nil {
		return err
	}
	defer func() { <-m.Shutdown() }()

	result, err := m.Execute(ctx, "fileProcessor", "hash", data)

Scheduling:

A job is assigned to the first idle worker of its category. When every
worker is busy the job waits in a FIFO queue. A failed or timed-out attempt
is retried until MaxRetries is used up; a retry that cannot start at once is
put at the front of the queue, ahead of fresh submissions. Each attempt gets
the full timeout.

Workers:

Every worker is a goroutine with its own mailbox. A handler receives a
context that is cancelled when its attempt times out or the manager shuts
down. A worker whose handler ignores that context stays busy, and work
assigned to it after the timeout waits in its mailbox. A panic in a handler
crashes the worker; the pool replaces it under the same id. The job it was
running is reclaimed by its timeout, or immediately when ReclaimOnCrash is
set.

Errors:

Jobs that run out of retries fail with *RetryError. Use errors.Is with
ErrTimeout to tell timeouts from handler errors:

	_, err := m.Execute(ctx, "fileProcessor", "hash", data)
	if dispatch.IsRetryExhausted(err) && errors.Is(err, dispatch.ErrTimeout) {
		// every attempt timed out
	}

Submit after Shutdown fails with ErrNotRunning until Initialize is called
again. Jobs pending at Shutdown fail with ErrShutdown.

Observability:

Statistics are logged on StatsSchedule (a cron spec, "@every 30s" by default)
and passed to any configured StatsReporter. Set Config.Metrics to export
Prometheus metrics and Config.Tracer to record one span per job.
*/
package dispatch
