package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "RINGBUS"

// flagKeys maps the flags added by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"buffer-size":   "ring.buffer_size",
	"producer":      "ring.producer",
	"wait-strategy": "ring.wait_strategy",
	"workers":       "workers.count",
	"mode":          "workers.mode",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"admin-addr":    "admin.addr",
}

// RegisterFlags adds the flags that override config keys to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("buffer-size", d.Ring.BufferSize, "ring buffer slots, a power of two")
	fs.String("producer", d.Ring.Producer, "producer type: single or multi")
	fs.String("wait-strategy", d.Ring.WaitStrategy, "consumer wait strategy")
	fs.Int("workers", d.Workers.Count, "number of competing workers")
	fs.String("mode", d.Workers.Mode, "consumer mode: pool or ordered")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "log format: json or console")
	fs.String("admin-addr", d.Admin.Addr, "admin HTTP listen address, empty to disable")
}

// Option configures a Source.
type Option func(*Source)

// WithFile reads path in addition to defaults, env and flags.
func WithFile(path string) Option {
	return func(s *Source) {
		s.file = path
	}
}

// WithFlags binds the flags registered by RegisterFlags.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(s *Source) {
		s.flags = fs
	}
}

// WithLogger sets the logger used for reload messages.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Source resolves configuration from defaults, a file, the environment and
// flags.
type Source struct {
	v      *viper.Viper
	file   string
	flags  *pflag.FlagSet
	logger *zap.Logger

	mu       sync.Mutex
	onChange []func(*Config)
}

// NewSource prepares a Source. Nothing is read until Load.
func NewSource(opts ...Option) (*Source, error) {
	s := &Source{
		v:      viper.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	setDefaults(s.v)
	s.v.SetEnvPrefix(EnvPrefix)
	s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.v.AutomaticEnv()

	if s.flags != nil {
		for name, key := range flagKeys {
			f := s.flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := s.v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	if s.file != "" {
		s.v.SetConfigFile(s.file)
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("ring.buffer_size", d.Ring.BufferSize)
	v.SetDefault("ring.producer", d.Ring.Producer)
	v.SetDefault("ring.wait_strategy", d.Ring.WaitStrategy)
	v.SetDefault("ring.wait_timeout", d.Ring.WaitTimeout)
	v.SetDefault("workers.count", d.Workers.Count)
	v.SetDefault("workers.mode", d.Workers.Mode)
	v.SetDefault("workers.handler_timeout", d.Workers.HandlerTimeout)
	v.SetDefault("publish.timeout", d.Publish.Timeout)
	v.SetDefault("routes", []map[string]string{})
	v.SetDefault("route_definitions", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("admin.addr", d.Admin.Addr)
	v.SetDefault("shutdown_hook", d.ShutdownHook)
	v.SetDefault("watch_config", d.WatchConfig)
}

// Load reads the file, if any, and returns the validated configuration.
func (s *Source) Load() (*Config, error) {
	if s.file != "" {
		if err := s.v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, s.file)
			}
			return nil, &ParseError{Path: s.file, Err: err}
		}
	}
	return s.decode()
}

func (s *Source) decode() (*Config, error) {
	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: s.file, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is a shorthand for NewSource followed by Source.Load.
func Load(opts ...Option) (*Config, error) {
	s, err := NewSource(opts...)
	if err != nil {
		return nil, err
	}
	return s.Load()
}

// SetLogger replaces the logger. Call it before Watch.
func (s *Source) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// OnChange registers fn to run with the new configuration after the watched
// file changes and still validates.
func (s *Source) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Watch starts watching the config file. It does nothing without a file.
// viper offers no way to stop the watch; it lasts for the life of the
// process.
func (s *Source) Watch() {
	if s.file == "" {
		return
	}
	s.v.OnConfigChange(s.handleFileChange)
	s.v.WatchConfig()
	s.logger.Info("Watching config file", zap.String("path", s.file))
}

// handleFileChange re-decodes the configuration after viper has re-read the
// file. A change that fails validation is logged and ignored.
func (s *Source) handleFileChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := s.decode()
	if err != nil {
		s.logger.Warn("Ignoring invalid config change", zap.String("path", e.Name), zap.Error(err))
		return
	}

	s.mu.Lock()
	fns := make([]func(*Config), len(s.onChange))
	copy(fns, s.onChange)
	s.mu.Unlock()

	s.logger.Info("Config file changed", zap.String("path", e.Name))
	for _, fn := range fns {
		fn(cfg)
	}
}
