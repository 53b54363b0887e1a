package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// workerHandle is the scheduler's view of one worker. Only the dispatcher
// loop reads or writes it. busy is true iff currentJob names an active job.
type workerHandle struct {
	id             string
	category       string
	busy           bool
	currentJob     string
	tasksProcessed int64
	errors         int64
	createdAt      time.Time
	lastUsedAt     time.Time
	exec           *execContext
}

func (h *workerHandle) stats() WorkerStats {
	return WorkerStats{
		ID:             h.id,
		Busy:           h.busy,
		CurrentJobID:   h.currentJob,
		TasksProcessed: h.tasksProcessed,
		Errors:         h.errors,
		CreatedAt:      h.createdAt,
		LastUsedAt:     h.lastUsedAt,
	}
}

// request is one dispatched attempt.
type request struct {
	ctx context.Context
	seq int
	req Request
}

// report is what an execution context sends back to the dispatcher.
type report struct {
	category string
	workerID string
	gen      uint64
	jobID    string
	seq      int
	result   any
	err      error
	duration time.Duration
	crashed  bool
	stack    []byte
}

// execContext is the isolated goroutine behind a worker handle. It shares
// nothing with the dispatcher except its mailbox and the report callback.
type execContext struct {
	id       string
	category string
	gen      uint64
	handlers Handlers
	mb       *mailbox
	ctx      context.Context
	cancel   context.CancelFunc
	deliver  func(report)
	onStop   func(workerID string)
}

// terminate stops the execution context. Requests still in the mailbox are dropped.
func (e *execContext) terminate() {
	e.cancel()
}

// run is the main loop for an execution context.
func (e *execContext) run(wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if e.onStop != nil {
			e.onStop(e.id)
		}
	}()

	for {
		r, ok := e.mb.next(e.ctx)
		if !ok {
			return
		}
		if !e.execute(r) {
			return
		}
	}
}

// execute runs one request and reports the outcome. It returns false when
// the handler panicked, which ends the execution context.
func (e *execContext) execute(r request) (alive bool) {
	start := time.Now()
	rep := report{
		category: e.category,
		workerID: e.id,
		gen:      e.gen,
		jobID:    r.req.JobID,
		seq:      r.seq,
	}

	defer func() {
		if v := recover(); v != nil {
			rep.crashed = true
			rep.err = fmt.Errorf("%w: %v", ErrWorkerCrashed, v)
			rep.stack = debug.Stack()
			rep.duration = time.Since(start)
			e.deliver(rep)
			alive = false
		}
	}()

	// The attempt was abandoned while queued behind a stuck handler.
	if r.ctx.Err() != nil {
		return true
	}

	h, ok := e.handlers[r.req.Operation]
	if !ok {
		rep.err = fmt.Errorf("%w: %q", ErrUnknownOperation, r.req.Operation)
	} else {
		rep.result, rep.err = h(r.ctx, r.req)
	}
	if rep.err != nil {
		rep.err = &HandlerError{
			JobID:     r.req.JobID,
			Operation: r.req.Operation,
			Attempt:   r.req.Attempt,
			Err:       rep.err,
		}
	}
	rep.duration = time.Since(start)
	e.deliver(rep)
	return true
}

// mailbox is an unbounded FIFO so posting work never blocks the dispatcher,
// even when the execution context is stuck in a handler.
type mailbox struct {
	mu     sync.Mutex
	items  []request
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(r request) {
	m.mu.Lock()
	m.items = append(m.items, r)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// next blocks until a request is available or ctx is done.
func (m *mailbox) next(ctx context.Context) (request, bool) {
	for {
		if ctx.Err() != nil {
			return request{}, false
		}

		m.mu.Lock()
		if len(m.items) > 0 {
			r := m.items[0]
			m.items[0] = request{}
			m.items = m.items[1:]
			m.mu.Unlock()
			return r, true
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return request{}, false
		case <-m.signal:
		}
	}
}
