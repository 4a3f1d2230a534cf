package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/godlewis/process-list/internal/logger"
)

// Defaults applied by Default() and used whenever the file omits a knob.
const (
	DefaultTTL             = 10 * time.Second
	DefaultRefreshInterval = 10 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultFallbackWait    = 5 * time.Second
	DefaultFallbackPoll    = 100 * time.Millisecond
	DefaultListen          = ":8931"
	DefaultBasePath        = "/api"
)

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// JournalConfig describes the optional refresh journal. DSN selects the
// backend: sqlite path, postgres:// or clickhouse:// URL.
type JournalConfig struct {
	Enabled       bool          `toml:"enabled" mapstructure:"enabled"`
	DSN           string        `toml:"dsn" mapstructure:"dsn"`
	Retention     time.Duration `toml:"retention" mapstructure:"retention"`
	PurgeSchedule string        `toml:"purge_schedule" mapstructure:"purge_schedule"`
}

// Config is the top-level TOML structure for the daemon.
type Config struct {
	TTL             time.Duration `toml:"ttl" mapstructure:"ttl"`
	RefreshInterval time.Duration `toml:"refresh_interval" mapstructure:"refresh_interval"`
	FetchTimeout    time.Duration `toml:"fetch_timeout" mapstructure:"fetch_timeout"`
	FallbackWait    time.Duration `toml:"fallback_wait" mapstructure:"fallback_wait"`
	FallbackPoll    time.Duration `toml:"fallback_poll" mapstructure:"fallback_poll"`

	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
	Journal JournalConfig `toml:"journal" mapstructure:"journal"`
}

// Default returns a config with all knobs at their documented defaults.
func Default() Config {
	return Config{
		TTL:             DefaultTTL,
		RefreshInterval: DefaultRefreshInterval,
		FetchTimeout:    DefaultFetchTimeout,
		FallbackWait:    DefaultFallbackWait,
		FallbackPoll:    DefaultFallbackPoll,
		Server: ServerConfig{
			Listen:   DefaultListen,
			BasePath: DefaultBasePath,
		},
		Journal: JournalConfig{
			Retention:     7 * 24 * time.Hour,
			PurgeSchedule: "@every 1h",
		},
	}
}

// Load reads a TOML config file. Keys absent from the file keep their
// defaults; present keys override them. Durations accept Go syntax ("10s").
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", c.TTL)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.FallbackWait < 0 {
		return fmt.Errorf("fallback_wait cannot be negative, got %s", c.FallbackWait)
	}
	if c.FallbackPoll <= 0 {
		return fmt.Errorf("fallback_poll must be positive, got %s", c.FallbackPoll)
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen cannot be empty")
	}
	if c.Journal.Enabled {
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required when journal.enabled is true")
		}
		if c.Journal.Retention < 0 {
			return fmt.Errorf("journal.retention cannot be negative, got %s", c.Journal.Retention)
		}
	}
	return nil
}
