package bus

import (
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/metrics"
	"github.com/dshills/ringbus/internal/ring"
	"github.com/dshills/ringbus/internal/worker"
)

// ConsumerMode selects how published events are consumed.
type ConsumerMode int

const (
	// ModeWorkerPool hands each event to exactly one of several competing
	// workers. Events are handled concurrently and in no particular order.
	ModeWorkerPool ConsumerMode = iota

	// ModeOrdered handles events one at a time in publish order on a single
	// consumer goroutine.
	ModeOrdered
)

// String returns the configuration name of the mode.
func (m ConsumerMode) String() string {
	switch m {
	case ModeWorkerPool:
		return "pool"
	case ModeOrdered:
		return "ordered"
	default:
		return "unknown"
	}
}

// ParseConsumerMode maps a configuration name to a ConsumerMode.
func ParseConsumerMode(name string) (ConsumerMode, error) {
	switch name {
	case "", "pool":
		return ModeWorkerPool, nil
	case "ordered":
		return ModeOrdered, nil
	default:
		return 0, &ConfigurationError{Field: "mode", Value: name, Reason: "must be pool or ordered"}
	}
}

// Default configuration values.
const (
	DefaultBufferSize  = 1024
	DefaultWorkerCount = 4
)

// Option configures a Bus.
type Option func(*config)

type config struct {
	bufferSize     int
	producer       ring.ProducerType
	wait           ring.WaitStrategy
	workerCount    int
	mode           ConsumerMode
	exceptions     worker.ExceptionHandler
	logger         *zap.Logger
	metrics        *metrics.Collector
	handlerTimeout time.Duration
	publishTimeout time.Duration
	shutdownHook   bool
}

func defaultConfig() config {
	return config{
		bufferSize:  DefaultBufferSize,
		producer:    ring.ProducerSingle,
		workerCount: DefaultWorkerCount,
		mode:        ModeWorkerPool,
		logger:      zap.NewNop(),
	}
}

// WithBufferSize sets the number of ring buffer slots. It must be a power of
// two; New fails with a *ConfigurationError otherwise.
func WithBufferSize(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// WithProducerType selects single or multi producer publishing. With
// ring.ProducerSingle concurrent publishers take turns on a bus lock;
// ring.ProducerMulti lets them claim slots in parallel.
func WithProducerType(p ring.ProducerType) Option {
	return func(c *config) {
		c.producer = p
	}
}

// WithWaitStrategy sets how idle consumers wait. Default blocking.
func WithWaitStrategy(w ring.WaitStrategy) Option {
	return func(c *config) {
		c.wait = w
	}
}

// WithWorkerCount sets the number of competing workers in ModeWorkerPool.
func WithWorkerCount(n int) Option {
	return func(c *config) {
		c.workerCount = n
	}
}

// WithConsumerMode selects worker pool or ordered consumption.
func WithConsumerMode(m ConsumerMode) Option {
	return func(c *config) {
		c.mode = m
	}
}

// WithExceptionHandler receives handler failures. The default logs them.
func WithExceptionHandler(h worker.ExceptionHandler) Option {
	return func(c *config) {
		c.exceptions = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records bus activity on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithHandlerTimeout bounds each handler call. Zero disables it.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *config) {
		c.handlerTimeout = d
	}
}

// WithPublishTimeout bounds how long Publish waits for a free slot. Zero
// waits until the caller's context ends.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *config) {
		c.publishTimeout = d
	}
}

// WithShutdownHook stops the bus on SIGINT or SIGTERM.
func WithShutdownHook(enabled bool) Option {
	return func(c *config) {
		c.shutdownHook = enabled
	}
}

func (c *config) validate() error {
	if c.workerCount < 1 {
		return &ConfigurationError{Field: "worker_count", Value: c.workerCount, Reason: "must be at least 1"}
	}
	if c.handlerTimeout < 0 {
		return &ConfigurationError{Field: "handler_timeout", Value: c.handlerTimeout, Reason: "must not be negative"}
	}
	if c.publishTimeout < 0 {
		return &ConfigurationError{Field: "publish_timeout", Value: c.publishTimeout, Reason: "must not be negative"}
	}
	switch c.mode {
	case ModeWorkerPool, ModeOrdered:
	default:
		return &ConfigurationError{Field: "mode", Value: c.mode, Reason: "unknown consumer mode"}
	}
	return nil
}
