package ring

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ring package.
var (
	// ErrAlerted is returned by a barrier wait when the barrier has been alerted.
	// Consumers treat it as a request to re-check their running flag.
	ErrAlerted = errors.New("sequence barrier alerted")

	// ErrCapacityTimeout is returned when a producer gives up waiting for free
	// slots because its context expired.
	ErrCapacityTimeout = errors.New("timed out waiting for ring capacity")

	// ErrInsufficientCapacity is returned by non-blocking claims when the
	// buffer does not have enough free slots.
	ErrInsufficientCapacity = errors.New("insufficient ring capacity")

	// ErrWaitTimeout is returned by wait strategies with a deadline when no
	// sequence became available in time.
	ErrWaitTimeout = errors.New("wait strategy timed out")

	// ErrInvalidClaim is returned when a claim size is outside [1, bufferSize].
	ErrInvalidClaim = errors.New("claim size must be between 1 and the buffer size")

	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
)

// ConfigurationError reports an invalid construction parameter.
// It is fatal: a component that fails with it must not be started.
type ConfigurationError struct {
	// Field names the offending setting (e.g. "buffer_size").
	Field string

	// Value is the rejected value.
	Value any

	// Reason explains the constraint that was violated.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is allows errors.Is to match ConfigurationError with ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
