package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig describes an optional rotating log file. When Path is empty
// the daemon logs to stderr only.
type FileConfig struct {
	Path       string `mapstructure:"path" toml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" toml:"compress"`
}

// Config describes the daemon logger. Zero value means info level, plain
// text to stderr.
type Config struct {
	Level     string     `mapstructure:"level" toml:"level"`   // debug|info|warn|error
	Format    string     `mapstructure:"format" toml:"format"` // text|json
	Color     bool       `mapstructure:"color" toml:"color"`
	AddSource bool       `mapstructure:"add_source" toml:"add_source"`
	File      FileConfig `mapstructure:"file" toml:"file"`
}

// Build assembles a slog.Logger from the config. The returned LevelVar is
// live: setting it changes the level of the running logger, which is how
// config reload adjusts verbosity without rebuilding handlers.
func (c Config) Build() (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(c.Level))

	var w io.Writer = os.Stderr
	if c.File.Path != "" {
		rot := &lj.Logger{
			Filename:   c.File.Path,
			MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.File.Compress,
		}
		w = io.MultiWriter(os.Stderr, rot)
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: c.AddSource}
	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		if c.Color {
			h = NewColorTextHandler(w, opts)
		} else {
			h = slog.NewTextHandler(w, opts)
		}
	}
	return slog.New(h), level
}

// ParseLevel maps a config string to a slog level. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
