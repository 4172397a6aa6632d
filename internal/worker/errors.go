package worker

import (
	"errors"
	"fmt"
	"strconv"
)

// Sentinel errors for the worker package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running group.
	ErrAlreadyRunning = errors.New("consumer group is already running")

	// ErrNoHandler is returned when a group is built without a handler.
	ErrNoHandler = errors.New("handler cannot be nil")

	// ErrInvalidWorkerCount is returned for a worker count below one.
	ErrInvalidWorkerCount = errors.New("worker count must be at least 1")

	// ErrHandlerPanic is matched by every *PanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrHandlerTimeout is returned when a handler outlives its deadline.
	ErrHandlerTimeout = errors.New("handler timeout exceeded")
)

// HandlerError wraps a failure of the handler for one sequence.
type HandlerError struct {
	// Sequence is the ring sequence of the failed event.
	Sequence int64

	// Route is the route of the failed event.
	Route string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler error at sequence " + strconv.FormatInt(e.Sequence, 10) + " on route " + e.Route + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered panic as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
