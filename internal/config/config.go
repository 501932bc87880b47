// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
)

type AppConfig struct {
	ServerPort      string        `env:"PORT"                      envDefault:"8000"`
	PluginDir       string        `env:"DECKY_PLUGIN_DIR"`
	SettingsDir     string        `env:"DECKY_PLUGIN_SETTINGS_DIR"`
	CuratorBaseURL  string        `env:"CURATOR_BASE_URL"          envDefault:"https://store.steampowered.com"`
	CuratorIDs      []int         `env:"CURATOR_IDS"               envDefault:"38115929,45481916" envSeparator:","`
	CacheTTL        time.Duration `env:"CACHE_TTL"                 envDefault:"2h"`
	DatabaseMaxAge  time.Duration `env:"DATABASE_MAX_AGE"          envDefault:"168h"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"          envDefault:"0s"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB"                  envDefault:"0"`
	LogLevel        string        `env:"LOG_LEVEL"                 envDefault:"info"`
}

// Load parses the environment. Call godotenv first if a .env file should be honoured.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if len(c.CuratorIDs) == 0 {
		return fmt.Errorf("CURATOR_IDS must name at least one curator")
	}
	for _, id := range c.CuratorIDs {
		if id <= 0 {
			return fmt.Errorf("CURATOR_IDS contains invalid curator id %d", id)
		}
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.DatabaseMaxAge <= 0 {
		return fmt.Errorf("DATABASE_MAX_AGE must be positive, got %s", c.DatabaseMaxAge)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL must not be negative, got %s", c.RefreshInterval)
	}
	if c.PluginDir == "" {
		slog.Warn("DECKY_PLUGIN_DIR is not set, the games database will not be loaded or saved")
	}
	return nil
}

// Sources returns the configured curators in merge order, named when they are known.
func (c *AppConfig) Sources() []curator.Source {
	sources := make([]curator.Source, 0, len(c.CuratorIDs))
	for _, id := range c.CuratorIDs {
		sources = append(sources, curator.Source{CuratorID: id, Name: curator.SourceName(id)})
	}
	return sources
}

// SlogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedisEnabled reports whether the Redis mirror is configured.
func (c *AppConfig) RedisEnabled() bool {
	return c.RedisAddr != ""
}
