package dispatch

import (
	"errors"
	"fmt"

	dserrors "github.com/vnykmshr/dispatch/pkg/common/errors"
)

var (
	// ErrNotRunning is returned by Submit after Shutdown and before the
	// next Initialize.
	ErrNotRunning = errors.New("dispatch: manager is not running")

	// ErrShutdown rejects jobs still pending when Shutdown runs.
	ErrShutdown = fmt.Errorf("dispatch: manager shut down: %w", dserrors.ErrClosed)

	// ErrUnknownCategory rejects submissions for unconfigured categories.
	ErrUnknownCategory = errors.New("dispatch: unknown category")

	// ErrUnknownOperation is reported by a worker whose handler table has
	// no entry for the requested operation.
	ErrUnknownOperation = errors.New("dispatch: unknown operation")

	// ErrWorkerCrashed wraps the panic that killed an execution context.
	ErrWorkerCrashed = fmt.Errorf("dispatch: worker crashed: %w", dserrors.ErrCrashed)

	// ErrNoWorkers rejects jobs for a category whose workers all failed to start.
	ErrNoWorkers = fmt.Errorf("dispatch: no workers available: %w", dserrors.ErrCapacityExceeded)

	// ErrTimeout marks attempts that outlived their timeout.
	ErrTimeout = dserrors.ErrTimeout
)

// RetryError is the terminal error of a job that used up its retries.
// TimedOut tells whether the last attempt timed out or reported an error.
type RetryError struct {
	JobID     string
	Category  string
	Operation string
	Retries   int
	TimedOut  bool
	Cause     error
}

func (e *RetryError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("task timed out after %d retries", e.Retries)
	}
	return fmt.Sprintf("task failed after %d retries: %v", e.Retries, e.Cause)
}

func (e *RetryError) Unwrap() error {
	return e.Cause
}

// IsRetryExhausted reports whether err ends a job that ran out of retries.
func IsRetryExhausted(err error) bool {
	var rerr *RetryError
	return errors.As(err, &rerr)
}

// HandlerError is an execution error reported by a worker for one attempt.
type HandlerError struct {
	JobID     string
	Operation string
	Attempt   int
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.Operation, e.Attempt, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
