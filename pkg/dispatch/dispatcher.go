package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dserrors "github.com/vnykmshr/dispatch/pkg/common/errors"
	"github.com/vnykmshr/dispatch/pkg/metrics"
)

const eventBuffer = 64

// dispatcher is one running lifetime of a Manager. Every field below the
// channels is owned by the loop goroutine; other goroutines reach it only
// through post and call.
type dispatcher struct {
	name           string
	reclaimOnCrash bool
	log            *slog.Logger
	metrics        *metrics.Registry
	schedule       cron.Schedule

	events  chan func()
	quit    chan struct{}
	workers sync.WaitGroup
	fanout  *reportFanout

	stopped bool
	gen     uint64
	order   []string
	pools   map[string]*workerPool
	queues  map[string]*taskQueue
	active  map[string]*job
	stats   map[string]*categoryStats
}

func startDispatcher(cfg Config, log *slog.Logger) *dispatcher {
	schedule, _ := cfg.schedule()

	d := &dispatcher{
		name:           cfg.Name,
		reclaimOnCrash: cfg.ReclaimOnCrash,
		log:            log,
		metrics:        cfg.Metrics,
		schedule:       schedule,
		events:         make(chan func(), eventBuffer),
		quit:           make(chan struct{}),
		pools:          make(map[string]*workerPool, len(cfg.Categories)),
		queues:         make(map[string]*taskQueue, len(cfg.Categories)),
		active:         make(map[string]*job),
		stats:          make(map[string]*categoryStats, len(cfg.Categories)),
	}

	for _, cat := range cfg.Categories {
		pool := newWorkerPool(cat.Name, cat.PoolSize, d.spawner(cat), log)
		d.order = append(d.order, cat.Name)
		d.pools[cat.Name] = pool
		d.queues[cat.Name] = &taskQueue{}
		d.stats[cat.Name] = &categoryStats{created: time.Now()}
		log.Info("worker pool created", "category", cat.Name,
			"workers", pool.size(), "configured", cat.PoolSize)
		d.updateGauges(cat.Name)
	}

	d.fanout = startReportFanout(cfg.Reporters, log)
	go d.run()
	return d
}

// spawner returns the function that builds execution contexts for cat.
func (d *dispatcher) spawner(cat Category) spawnFunc {
	return func(id string) (exec *execContext, err error) {
		if cat.OnWorkerStart != nil {
			defer func() {
				if v := recover(); v != nil {
					exec = nil
					err = dserrors.NewOperationError("dispatch", "CreateWorker", fmt.Errorf("panic: %v", v)).
						WithContext(id)
				}
			}()
			if serr := cat.OnWorkerStart(id); serr != nil {
				return nil, dserrors.NewOperationError("dispatch", "CreateWorker", serr).WithContext(id)
			}
		}

		d.gen++
		ctx, cancel := context.WithCancel(context.Background())
		exec = &execContext{
			id:       id,
			category: cat.Name,
			gen:      d.gen,
			handlers: cat.Handlers,
			mb:       newMailbox(),
			ctx:      ctx,
			cancel:   cancel,
			deliver:  d.deliver,
			onStop:   cat.OnWorkerStop,
		}
		d.workers.Add(1)
		go exec.run(&d.workers)
		return exec, nil
	}
}

// run is the scheduling loop.
func (d *dispatcher) run() {
	defer close(d.quit)

	var tick <-chan time.Time
	var timer *time.Timer
	if d.schedule != nil {
		timer = time.NewTimer(time.Until(d.schedule.Next(time.Now())))
		defer timer.Stop()
		tick = timer.C
	}

	for {
		select {
		case fn := <-d.events:
			fn()
			if d.stopped {
				return
			}
		case <-tick:
			d.logStats()
			timer.Reset(time.Until(d.schedule.Next(time.Now())))
		}
	}
}

// post queues fn on the loop. It returns false once the loop has exited.
func (d *dispatcher) post(fn func()) bool {
	select {
	case d.events <- fn:
		return true
	case <-d.quit:
		return false
	}
}

// call runs fn on the loop and waits for it. It returns false if fn never ran.
func (d *dispatcher) call(fn func()) bool {
	done := make(chan struct{})
	if !d.post(func() { fn(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-d.quit:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

func (d *dispatcher) deliver(rep report) {
	d.post(func() { d.handleReport(rep) })
}

// stop shuts the loop down and waits for cooperative execution contexts.
func (d *dispatcher) stop() {
	d.post(d.shutdown)
	<-d.quit
	d.fanout.stop()
	d.workers.Wait()
}

func (d *dispatcher) submit(j *job) {
	pool, ok := d.pools[j.category]
	if !ok {
		j.reject(fmt.Errorf("%w: %q", ErrUnknownCategory, j.category))
		return
	}

	d.active[j.id] = j
	if d.metrics != nil {
		d.metrics.JobsSubmitted.WithLabelValues(d.name, j.category).Inc()
	}
	if pool.size() == 0 {
		d.failNoWorkers(j)
		return
	}
	d.armTimer(j)

	if !d.tryAssign(j) {
		q := d.queues[j.category]
		q.pushBack(j)
		d.log.Info("job queued", "job_id", j.id, "category", j.category, "queue_length", q.len())
	}
	d.updateGauges(j.category)
}

// armTimer starts a fresh timeout clock for the job's current attempt.
func (d *dispatcher) armTimer(j *job) {
	j.stopTimer()
	j.timerSeq++
	id, seq := j.id, j.timerSeq
	j.timer = time.AfterFunc(j.timeout, func() {
		d.post(func() { d.onTimeout(id, seq) })
	})
}

func (d *dispatcher) tryAssign(j *job) bool {
	pool := d.pools[j.category]
	if pool == nil {
		return false
	}
	h := pool.findIdle()
	if h == nil {
		return false
	}
	d.assign(j, h)
	return true
}

func (d *dispatcher) assign(j *job, h *workerHandle) {
	h.busy = true
	h.currentJob = j.id
	h.lastUsedAt = time.Now()

	j.seq++
	j.worker = h.id
	ctx, cancel := context.WithCancel(h.exec.ctx)
	j.cancel = cancel

	d.log.Debug("assigning job", "job_id", j.id, "worker_id", h.id, "attempt", j.retries+1)
	h.exec.mb.push(request{
		ctx: ctx,
		seq: j.seq,
		req: Request{
			JobID:     j.id,
			Category:  j.category,
			Operation: j.operation,
			Attempt:   j.retries + 1,
			Payload:   j.payload,
			Params:    j.params,
		},
	})
}

func (d *dispatcher) release(h *workerHandle) {
	h.busy = false
	h.currentJob = ""
}

func (d *dispatcher) handleReport(rep report) {
	pool := d.pools[rep.category]
	if pool == nil {
		return
	}
	h := pool.get(rep.workerID)
	if h == nil || h.exec.gen != rep.gen {
		d.log.Debug("ignoring report from replaced worker", "worker_id", rep.workerID, "job_id", rep.jobID)
		return
	}

	if rep.crashed {
		d.onCrash(pool, h, rep)
		return
	}

	j := d.active[rep.jobID]
	if j == nil || j.seq != rep.seq || j.worker != h.id {
		d.log.Debug("ignoring stale report", "worker_id", rep.workerID, "job_id", rep.jobID)
		return
	}

	if rep.err != nil {
		d.onError(j, h, rep)
	} else {
		d.onComplete(j, h, rep)
	}
}

func (d *dispatcher) onComplete(j *job, h *workerHandle, rep report) {
	j.detach()
	j.stopTimer()

	d.stats[j.category].recordSuccess(rep.duration)
	h.tasksProcessed++
	d.release(h)

	delete(d.active, j.id)
	j.resolve(rep.result)

	if d.metrics != nil {
		d.metrics.JobsCompleted.WithLabelValues(d.name, j.category).Inc()
		d.metrics.JobDuration.WithLabelValues(d.name, j.category).Observe(rep.duration.Seconds())
	}
	d.log.Info("job completed", "job_id", j.id, "worker_id", h.id,
		"processing_time", rep.duration)

	d.processNext(j.category)
}

func (d *dispatcher) onError(j *job, h *workerHandle, rep report) {
	j.detach()

	d.stats[j.category].recordError()
	h.errors++
	d.release(h)

	if d.metrics != nil {
		d.metrics.AttemptErrors.WithLabelValues(d.name, j.category).Inc()
	}
	d.log.Error("job attempt failed", "job_id", j.id, "worker_id", h.id,
		"attempt", j.retries+1, "error", rep.err)

	d.retryOrReject(j, rep.err, false)
	d.processNext(j.category)
}

func (d *dispatcher) onTimeout(id string, seq int) {
	j := d.active[id]
	if j == nil || j.timerSeq != seq {
		return
	}
	j.timer = nil

	d.log.Warn("job timed out", "job_id", j.id, "worker_id", j.worker,
		"attempt", j.retries+1, "timeout", j.timeout)

	if j.worker != "" {
		// The execution context may be stuck; free the handle without replacing it.
		if h := d.pools[j.category].get(j.worker); h != nil && h.currentJob == j.id {
			d.release(h)
		}
	} else {
		d.queues[j.category].remove(j.id)
	}
	j.detach()

	d.stats[j.category].tasksTimedOut++
	if d.metrics != nil {
		d.metrics.AttemptTimeouts.WithLabelValues(d.name, j.category).Inc()
	}
	j.span.AddEvent("timeout", trace.WithAttributes(attribute.Int("attempt", j.retries+1)))

	d.retryOrReject(j, fmt.Errorf("job %s attempt %d: %w", j.id, j.retries+1, ErrTimeout), true)
	d.processNext(j.category)
}

func (d *dispatcher) onCrash(pool *workerPool, h *workerHandle, rep report) {
	d.log.Error("worker crashed", "worker_id", h.id, "category", pool.category,
		"error", rep.err, "stack", string(rep.stack))

	d.stats[pool.category].crashes++
	if d.metrics != nil {
		d.metrics.WorkerCrashes.WithLabelValues(d.name, pool.category).Inc()
	}

	orphan := h.currentJob
	if _, err := pool.replace(h.id); err != nil {
		d.log.Error("failed to recreate worker", "worker_id", h.id, "error", err)
		if pool.size() == 0 {
			for _, queued := range d.queues[pool.category].drain() {
				d.failNoWorkers(queued)
			}
		}
	} else {
		d.log.Info("recreated worker", "worker_id", h.id)
	}

	if j := d.active[orphan]; j != nil && j.worker == h.id {
		j.detach()
		j.span.AddEvent("worker crashed", trace.WithAttributes(attribute.String("worker_id", h.id)))
		if d.reclaimOnCrash {
			d.retryOrReject(j, rep.err, false)
		}
		// Otherwise the job's own timeout reclaims it.
	}

	d.processNext(pool.category)
}

// retryOrReject either schedules another attempt or settles the job with a
// RetryError. Retries that cannot start at once go to the front of the queue.
func (d *dispatcher) retryOrReject(j *job, cause error, timedOut bool) {
	if j.retries < j.maxRetries {
		if d.pools[j.category].size() == 0 {
			d.failNoWorkers(j)
			return
		}
		j.retries++
		d.stats[j.category].retries++
		if d.metrics != nil {
			d.metrics.Retries.WithLabelValues(d.name, j.category).Inc()
		}
		j.span.AddEvent("retry", trace.WithAttributes(attribute.Int("retry", j.retries)))
		d.log.Info("retrying job", "job_id", j.id, "retry", j.retries, "max_retries", j.maxRetries)

		d.armTimer(j)
		if !d.tryAssign(j) {
			d.queues[j.category].pushFront(j)
		}
		return
	}

	j.stopTimer()
	delete(d.active, j.id)
	j.reject(&RetryError{
		JobID:     j.id,
		Category:  j.category,
		Operation: j.operation,
		Retries:   j.maxRetries,
		TimedOut:  timedOut,
		Cause:     cause,
	})

	if d.metrics != nil {
		d.metrics.JobsFailed.WithLabelValues(d.name, j.category).Inc()
	}
	d.log.Error("job failed", "job_id", j.id, "retries", j.maxRetries, "timed_out", timedOut, "error", cause)
}

// failNoWorkers settles j when its category has no worker left to run it.
func (d *dispatcher) failNoWorkers(j *job) {
	j.stopTimer()
	j.detach()
	delete(d.active, j.id)
	j.reject(fmt.Errorf("job %s: %w: %q", j.id, ErrNoWorkers, j.category))

	if d.metrics != nil {
		d.metrics.JobsFailed.WithLabelValues(d.name, j.category).Inc()
	}
	d.log.Error("job failed", "job_id", j.id, "category", j.category, "error", ErrNoWorkers)
}

// processNext assigns queued jobs while the category has idle workers.
func (d *dispatcher) processNext(category string) {
	q, pool := d.queues[category], d.pools[category]
	if q == nil || pool == nil {
		return
	}
	for q.len() > 0 {
		h := pool.findIdle()
		if h == nil {
			break
		}
		d.assign(q.popFront(), h)
	}
	d.updateGauges(category)
}

func (d *dispatcher) updateGauges(category string) {
	if d.metrics == nil {
		return
	}
	pool, q := d.pools[category], d.queues[category]
	d.metrics.PoolSize.WithLabelValues(d.name, category).Set(float64(pool.size()))
	d.metrics.ActiveWorkers.WithLabelValues(d.name, category).Set(float64(pool.active()))
	d.metrics.QueueDepth.WithLabelValues(d.name, category).Set(float64(q.len()))
}

func (d *dispatcher) snapshot() map[string]CategoryStats {
	out := make(map[string]CategoryStats, len(d.stats))
	for name, s := range d.stats {
		out[name] = s.snapshot(d.pools[name], d.queues[name])
	}
	return out
}

// logStats logs one line per category and forwards the snapshot to reporters.
func (d *dispatcher) logStats() {
	snap := d.snapshot()
	for _, name := range d.order {
		s := snap[name]
		d.log.Info("worker performance stats",
			"category", name,
			"completed", s.TasksCompleted,
			"errored", s.TasksErrored,
			"timed_out", s.TasksTimedOut,
			"avg_time_ms", s.AverageProcessingTime.Milliseconds(),
			"active_workers", s.ActiveWorkers,
			"queue_length", s.QueueLength,
			"success_rate", fmt.Sprintf("%d%%", int(math.Round(s.SuccessRate*100))),
		)
	}
	d.fanout.offer(snap)
}

// shutdown settles every pending job and terminates every worker.
func (d *dispatcher) shutdown() {
	for id, j := range d.active {
		j.stopTimer()
		j.detach()
		j.reject(ErrShutdown)
		delete(d.active, id)
	}
	for name, pool := range d.pools {
		pool.terminate()
		d.queues[name].drain()
	}

	d.pools = map[string]*workerPool{}
	d.queues = map[string]*taskQueue{}
	d.stats = map[string]*categoryStats{}
	d.order = nil
	d.stopped = true
	d.log.Info("dispatcher stopped")
}
