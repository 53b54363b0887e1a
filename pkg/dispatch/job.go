package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandlerFunc runs one operation inside a worker's execution context.
// ctx is cancelled when the attempt times out or the manager shuts down.
// A panic escaping the handler crashes the execution context.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Handlers maps operation names to handler functions.
type Handlers map[string]HandlerFunc

// Request is the message a worker receives for one attempt. Payload is
// shared with the submitter and must be treated as read-only.
type Request struct {
	JobID     string
	Category  string
	Operation string
	Attempt   int
	Payload   any
	Params    map[string]any
}

// SubmitOption customizes a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	timeout    time.Duration
	maxRetries int
	params     map[string]any
}

// WithTimeout overrides the category timeout for this job.
func WithTimeout(d time.Duration) SubmitOption {
	return func(o *submitOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries overrides the category retry budget for this job.
// Negative values mean no retries.
func WithMaxRetries(n int) SubmitOption {
	return func(o *submitOptions) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = n
	}
}

// WithParams passes operation-specific parameters to the handler.
func WithParams(p map[string]any) SubmitOption {
	return func(o *submitOptions) {
		o.params = p
	}
}

// Future is the pending result of a submitted job. It settles exactly once.
type Future struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result any
	err    error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the job id.
func (f *Future) ID() string {
	return f.id
}

// Done is closed once the job reaches a terminal state.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result blocks until the job settles.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.result, f.err
}

func (f *Future) settle(result any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// job is owned by the dispatcher loop from submission to terminal state.
type job struct {
	id         string
	category   string
	operation  string
	payload    any
	params     map[string]any
	timeout    time.Duration
	maxRetries int
	retries    int
	createdAt  time.Time

	// seq identifies the current dispatch; reports carrying an older seq are stale.
	seq int
	// timerSeq identifies the armed timer; older timers firing late are ignored.
	timerSeq int
	timer    *time.Timer

	worker string
	cancel context.CancelFunc

	future *Future
	span   trace.Span
}

// newJobID builds category_operation_millis_suffix.
func newJobID(category, operation string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%s_%d_%s", category, operation, time.Now().UnixMilli(), suffix)
}

func (j *job) stopTimer() {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
}

// detach forgets the worker holding the job and cancels the attempt context.
func (j *job) detach() {
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	j.worker = ""
}

func (j *job) resolve(result any) {
	if j.future.settle(result, nil) {
		j.span.SetStatus(codes.Ok, "")
		j.span.End()
	}
}

func (j *job) reject(err error) {
	if j.future.settle(nil, err) {
		j.span.RecordError(err)
		j.span.SetStatus(codes.Error, err.Error())
		j.span.End()
	}
}
