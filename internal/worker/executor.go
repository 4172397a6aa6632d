package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dshills/ringbus/internal/event"
)

// Result is the outcome of running a handler for one event.
type Result struct {
	// Err is the error returned by the handler, if any.
	Err error

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// TimedOut is true if the handler failed because its deadline passed.
	TimedOut bool

	// Skipped is true if the handler was not run because ctx was done.
	Skipped bool

	// Duration is how long the handler took.
	Duration time.Duration
}

// IsSuccess returns true if the handler completed without error or panic.
func (r Result) IsSuccess() bool {
	return r.Err == nil && !r.Panicked && !r.Skipped
}

// Error folds the result into a single error, or nil on success.
func (r Result) Error() error {
	switch {
	case r.Panicked:
		return &PanicError{Value: r.PanicValue, Stack: r.PanicStack}
	case r.TimedOut:
		return fmt.Errorf("%w after %s: %w", ErrHandlerTimeout, r.Duration, r.Err)
	default:
		return r.Err
	}
}

// Executor runs handlers with panic recovery, timing and an optional
// per-event deadline.
type Executor struct {
	timeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout bounds every handler call. The handler must honour ctx for the
// bound to take effect. Zero disables it.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.timeout = d
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured per-event deadline.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs handler for evt and never panics.
func (e *Executor) Execute(ctx context.Context, handler event.Handler, evt *event.Event) (result Result) {
	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err(), Skipped: true}
	default:
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = debug.Stack()
		}
	}()

	err := handler.Handle(ctx, evt)
	if err != nil {
		result.Err = err
		if e.timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			result.TimedOut = true
		}
	}
	return result
}
