package config

import (
	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/logging"
)

// LogLevelReloader returns an OnChange callback that applies log.level to
// level. Other keys are not reloadable and are ignored.
func LogLevelReloader(level zap.AtomicLevel, logger *zap.Logger) func(*Config) {
	return func(cfg *Config) {
		lvl, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			logger.Warn("Ignoring log level change", zap.Error(err))
			return
		}
		if lvl == level.Level() {
			return
		}
		level.SetLevel(lvl)
		logger.Info("Log level changed", zap.Stringer("level", lvl))
	}
}
