package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Report sizes: "Last 5", "Top 10", "Top 10 in last 10 min"
	v.SetDefault("tracker.recent_size", 5)
	v.SetDefault("tracker.top_k", 10)
	v.SetDefault("tracker.window", 10*time.Minute)

	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("sync.write_timeout", 30*time.Second)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "hits.db")

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}
