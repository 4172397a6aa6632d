package bus

import (
	"errors"

	"github.com/dshills/ringbus/internal/ring"
)

// Sentinel errors for the bus.
var (
	// ErrBusNotRunning is returned when publishing to a bus that has not
	// been started or has been stopped.
	ErrBusNotRunning = errors.New("event bus is not running")

	// ErrDuplicateHandler is returned when a handler id is registered twice.
	ErrDuplicateHandler = errors.New("handler id already registered")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrRegistryFrozen is returned when registering after the bus started.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrNilEvent is returned by PublishEvent for a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// Ring buffer errors surfaced by the publish API.
var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = ring.ErrConfiguration

	// ErrInsufficientCapacity is returned by TryPublish when the buffer is full.
	ErrInsufficientCapacity = ring.ErrInsufficientCapacity

	// ErrCapacityTimeout is returned by Publish when the buffer stayed full
	// for the whole publish timeout or until ctx ended.
	ErrCapacityTimeout = ring.ErrCapacityTimeout
)

// ConfigurationError reports an invalid bus or ring configuration. It is
// fatal at construction.
type ConfigurationError = ring.ConfigurationError
