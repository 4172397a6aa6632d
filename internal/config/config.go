package config

import (
	"fmt"
	"time"

	"github.com/dshills/ringbus/internal/bus"
	"github.com/dshills/ringbus/internal/logging"
	"github.com/dshills/ringbus/internal/ring"
	"github.com/dshills/ringbus/internal/route"
)

// Config is the full ringbus configuration.
type Config struct {
	Ring    RingConfig    `mapstructure:"ring" yaml:"ring" toml:"ring" json:"ring"`
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers" toml:"workers" json:"workers"`
	Publish PublishConfig `mapstructure:"publish" yaml:"publish" toml:"publish" json:"publish"`

	// Routes are applied after RouteDefinitions.
	Routes           []route.Entry `mapstructure:"routes" yaml:"routes,omitempty" toml:"routes,omitempty" json:"routes,omitempty"`
	RouteDefinitions string        `mapstructure:"route_definitions" yaml:"route_definitions,omitempty" toml:"route_definitions,omitempty" json:"route_definitions,omitempty"`

	Log   logging.Config `mapstructure:"log" yaml:"log" toml:"log" json:"log"`
	Admin AdminConfig    `mapstructure:"admin" yaml:"admin" toml:"admin" json:"admin"`

	ShutdownHook bool `mapstructure:"shutdown_hook" yaml:"shutdown_hook" toml:"shutdown_hook" json:"shutdown_hook"`
	WatchConfig  bool `mapstructure:"watch_config" yaml:"watch_config" toml:"watch_config" json:"watch_config"`
}

// RingConfig sizes the ring buffer.
type RingConfig struct {
	BufferSize   int           `mapstructure:"buffer_size" yaml:"buffer_size" toml:"buffer_size" json:"buffer_size" validate:"gt=0"`
	Producer     string        `mapstructure:"producer" yaml:"producer" toml:"producer" json:"producer" validate:"oneof=single multi"`
	WaitStrategy string        `mapstructure:"wait_strategy" yaml:"wait_strategy" toml:"wait_strategy" json:"wait_strategy" validate:"oneof=blocking sleeping yielding busy-spin timeout-blocking"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout" toml:"wait_timeout" json:"wait_timeout" validate:"gte=0"`
}

// WorkersConfig configures the consumers.
type WorkersConfig struct {
	Count          int           `mapstructure:"count" yaml:"count" toml:"count" json:"count" validate:"gte=1"`
	Mode           string        `mapstructure:"mode" yaml:"mode" toml:"mode" json:"mode" validate:"oneof=pool ordered"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" yaml:"handler_timeout" toml:"handler_timeout" json:"handler_timeout" validate:"gte=0"`
}

// PublishConfig configures producers.
type PublishConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" toml:"timeout" json:"timeout" validate:"gte=0"`
}

// AdminConfig configures the admin HTTP server. An empty address disables
// it.
type AdminConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" toml:"addr" json:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Ring: RingConfig{
			BufferSize:   bus.DefaultBufferSize,
			Producer:     ring.ProducerSingle.String(),
			WaitStrategy: ring.WaitBlocking,
		},
		Workers: WorkersConfig{
			Count: bus.DefaultWorkerCount,
			Mode:  bus.ModeWorkerPool.String(),
		},
		Log:          logging.DefaultConfig(),
		ShutdownHook: true,
	}
}

// RouteEntries returns the route definitions followed by the route list, in
// the order they are registered.
func (c *Config) RouteEntries() ([]route.Entry, error) {
	entries, err := route.ParseDefinitions(c.RouteDefinitions)
	if err != nil {
		return nil, fmt.Errorf("route_definitions: %w", err)
	}
	return append(entries, c.Routes...), nil
}

// BusOptions translates the ring, workers and publish sections into bus
// options. Logger, metrics and exception handling are left to the caller.
func (c *Config) BusOptions() ([]bus.Option, error) {
	producer, err := ring.ParseProducerType(c.Ring.Producer)
	if err != nil {
		return nil, err
	}
	wait, err := ring.ParseWaitStrategy(c.Ring.WaitStrategy, c.Ring.WaitTimeout)
	if err != nil {
		return nil, err
	}
	mode, err := bus.ParseConsumerMode(c.Workers.Mode)
	if err != nil {
		return nil, err
	}

	return []bus.Option{
		bus.WithBufferSize(c.Ring.BufferSize),
		bus.WithProducerType(producer),
		bus.WithWaitStrategy(wait),
		bus.WithWorkerCount(c.Workers.Count),
		bus.WithConsumerMode(mode),
		bus.WithHandlerTimeout(c.Workers.HandlerTimeout),
		bus.WithPublishTimeout(c.Publish.Timeout),
		bus.WithShutdownHook(c.ShutdownHook),
	}, nil
}
