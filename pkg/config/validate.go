package config

import (
	"hit-tracker/pkg/errors"
)

func invalid(hint, format string, args ...any) error {
	return errors.WithHint(errors.Wrapf(errors.ErrInvalidConfig, format, args...), hint)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("omit server.port for the default 3001",
			"server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("use a duration such as \"10s\"",
			"server.shutdown_timeout must be > 0, got %s", c.Server.ShutdownTimeout)
	}

	if c.Tracker.RecentSize < 1 {
		return invalid("the report lists this many distinct visitors",
			"tracker.recent_size must be >= 1, got %d", c.Tracker.RecentSize)
	}
	// 0 disables count-based retention: only visitors seen within the window stay in memory.
	if c.Tracker.TopK < 0 {
		return invalid("use 0 to keep only recently active visitors",
			"tracker.top_k must be >= 0, got %d", c.Tracker.TopK)
	}
	if c.Tracker.Window <= 0 {
		return invalid("use a duration such as \"10m\"",
			"tracker.window must be > 0, got %s", c.Tracker.Window)
	}

	if c.Sync.Interval <= 0 {
		return invalid("use a duration such as \"1m\"",
			"sync.interval must be > 0, got %s", c.Sync.Interval)
	}
	if c.Sync.Interval > c.Tracker.Window {
		return invalid("sync at least once per tracker.window so pending visits are still in memory",
			"sync.interval (%s) must not exceed tracker.window (%s)", c.Sync.Interval, c.Tracker.Window)
	}
	if c.Sync.WriteTimeout <= 0 {
		return invalid("use a duration such as \"30s\"",
			"sync.write_timeout must be > 0, got %s", c.Sync.WriteTimeout)
	}

	switch c.Store.Driver {
	case "sqlite", "sqlite3", "bolt", "boltdb":
	default:
		return invalid("supported drivers are sqlite and bolt",
			"store.driver %q is not supported", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return invalid("set store.path to a writable file",
			"store.path cannot be empty")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("use one of debug, info, warn, error",
			"log.level %q is not supported", c.Log.Level)
	}

	return nil
}
