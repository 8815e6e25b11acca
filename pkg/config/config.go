// Package config loads hit-tracker settings from defaults, an optional TOML
// file, a .env file and HITS_* environment variables, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"hit-tracker/pkg/errors"
)

const EnvPrefix = "HITS"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TrackerConfig struct {
	RecentSize int           `mapstructure:"recent_size"`
	TopK       int           `mapstructure:"top_k"`
	Window     time.Duration `mapstructure:"window"`
}

type SyncConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// Load resolves configuration. When path is empty, hits.toml is looked up in
// the working directory and then in ~/.hits; a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	v := New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else {
		v.SetConfigName("hits")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hits"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper decodes and validates an already prepared viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	cfg.Source = v.ConfigFileUsed()
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Settings renders the resolved configuration as plain nested maps, with
// durations as strings, for display.
func (c *Config) Settings() map[string]map[string]any {
	return map[string]map[string]any{
		"server": {
			"port":             c.Server.Port,
			"shutdown_timeout": c.Server.ShutdownTimeout.String(),
		},
		"tracker": {
			"recent_size": c.Tracker.RecentSize,
			"top_k":       c.Tracker.TopK,
			"window":      c.Tracker.Window.String(),
		},
		"sync": {
			"interval":      c.Sync.Interval.String(),
			"write_timeout": c.Sync.WriteTimeout.String(),
		},
		"store": {
			"driver": c.Store.Driver,
			"path":   c.Store.Path,
		},
		"log": {
			"json":  c.Log.JSON,
			"level": c.Log.Level,
		},
	}
}
