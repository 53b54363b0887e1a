package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Manager dispatches jobs to category worker pools. It is safe for
// concurrent use. A Manager can be initialized again after Shutdown.
type Manager struct {
	cfg        Config
	categories map[string]Category
	log        *slog.Logger
	tracer     trace.Tracer

	mu           sync.Mutex
	state        state
	d            *dispatcher
	initializing chan struct{}
}

// New validates cfg and returns a Manager. No workers are started until
// Initialize or the first Submit.
func New(cfg Config) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	categories := make(map[string]Category, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		categories[cat.Name] = cat
	}

	return &Manager{
		cfg:        cfg,
		categories: categories,
		log:        cfg.Logger.With("manager", cfg.Name),
		tracer:     cfg.Tracer,
	}, nil
}

// Initialize creates every worker pool. It is idempotent; concurrent
// callers share one initialization. ctx bounds only the wait, not the
// initialization itself.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateRunning {
		m.mu.Unlock()
		return nil
	}
	if wait := m.initializing; wait != nil {
		m.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	m.initializing = done
	m.mu.Unlock()

	m.log.Info("initializing worker manager", "categories", len(m.cfg.Categories))
	d := startDispatcher(m.cfg, m.log)

	m.mu.Lock()
	m.d = d
	m.state = stateRunning
	m.initializing = nil
	m.mu.Unlock()
	close(done)

	m.log.Info("worker manager initialized")
	return nil
}

// Running reports whether the manager is initialized and not shut down.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateRunning
}

// live returns the running dispatcher. A never-initialized manager is
// initialized on demand; a stopped one is not.
func (m *Manager) live() (*dispatcher, error) {
	m.mu.Lock()
	st, d := m.state, m.d
	m.mu.Unlock()

	switch st {
	case stateRunning:
		return d, nil
	case stateStopped:
		return nil, ErrNotRunning
	}

	if err := m.Initialize(context.Background()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateRunning {
		return nil, ErrNotRunning
	}
	return m.d, nil
}

// Submit enqueues one job and returns its Future. It never blocks on job
// execution. Errors such as an unknown category or a stopped manager are
// delivered through the Future.
func (m *Manager) Submit(category, operation string, payload any, opts ...SubmitOption) *Future {
	id := newJobID(category, operation)
	f := newFuture(id)

	cat, ok := m.categories[category]
	if !ok {
		f.settle(nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category))
		return f
	}

	o := submitOptions{timeout: cat.Timeout, maxRetries: cat.MaxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	_, span := m.tracer.Start(context.Background(), "dispatch.job",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("dispatch.job_id", id),
			attribute.String("dispatch.category", category),
			attribute.String("dispatch.operation", operation),
			attribute.Int("dispatch.max_retries", o.maxRetries),
		))

	j := &job{
		id:         id,
		category:   category,
		operation:  operation,
		payload:    payload,
		params:     o.params,
		timeout:    o.timeout,
		maxRetries: o.maxRetries,
		createdAt:  time.Now(),
		future:     f,
		span:       span,
	}

	d, err := m.live()
	if err != nil {
		j.reject(err)
		return f
	}
	if !d.call(func() { d.submit(j) }) {
		j.reject(ErrNotRunning)
	}
	return f
}

// Execute submits a job and waits for its result. Cancelling ctx stops the
// wait only; the job keeps its own timeout and retries.
func (m *Manager) Execute(ctx context.Context, category, operation string, payload any, opts ...SubmitOption) (any, error) {
	return m.Submit(category, operation, payload, opts...).Wait(ctx)
}

// Stats returns a snapshot per category. A manager that is not running
// returns an empty map.
func (m *Manager) Stats() map[string]CategoryStats {
	m.mu.Lock()
	st, d := m.state, m.d
	m.mu.Unlock()

	out := map[string]CategoryStats{}
	if st != stateRunning {
		return out
	}
	d.call(func() { out = d.snapshot() })
	return out
}

// ReportStats logs statistics now and hands the snapshot to the configured
// reporters, as the periodic schedule does.
func (m *Manager) ReportStats() {
	m.mu.Lock()
	st, d := m.state, m.d
	m.mu.Unlock()

	if st == stateRunning {
		d.call(d.logStats)
	}
}

// Shutdown rejects every pending job with ErrShutdown and terminates all
// workers. It is idempotent. An Initialize in flight is allowed to finish
// first so its pools are stopped too. The returned channel closes once
// execution contexts have exited; handlers that ignore their context delay it.
func (m *Manager) Shutdown() <-chan struct{} {
	done := make(chan struct{})

	m.mu.Lock()
	for m.initializing != nil {
		wait := m.initializing
		m.mu.Unlock()
		<-wait
		m.mu.Lock()
	}
	d := m.d
	wasRunning := m.state == stateRunning
	m.state = stateStopped
	m.d = nil
	m.mu.Unlock()

	if !wasRunning {
		close(done)
		return done
	}

	m.log.Info("shutting down worker manager")
	go func() {
		defer close(done)
		d.stop()
		m.log.Info("worker manager shut down")
	}()
	return done
}
