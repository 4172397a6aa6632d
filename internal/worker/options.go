package worker

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a WorkerPool or BatchGroup.
type Option func(*groupConfig)

type groupConfig struct {
	name       string
	exceptions ExceptionHandler
	logger     *zap.Logger
	timeout    time.Duration
}

func newGroupConfig(name string, opts []Option) groupConfig {
	cfg := groupConfig{name: name}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.exceptions == nil {
		cfg.exceptions = NewLoggingExceptionHandler(cfg.logger)
	}
	return cfg
}

// WithName sets the name used in logs and errors.
func WithName(name string) Option {
	return func(c *groupConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithExceptionHandler sets the handler for event, start and shutdown
// failures. The default logs them.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(c *groupConfig) {
		c.exceptions = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *groupConfig) {
		c.logger = logger
	}
}

// WithHandlerTimeout bounds every handler call. Zero disables it.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *groupConfig) {
		if d >= 0 {
			c.timeout = d
		}
	}
}
