package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeToml(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "proclist.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.TTL != 10*time.Second || cfg.RefreshInterval != 10*time.Second {
		t.Fatalf("unexpected snapshot defaults: %+v", cfg)
	}
	if cfg.FallbackWait != 5*time.Second || cfg.FallbackPoll != 100*time.Millisecond {
		t.Fatalf("unexpected fallback defaults: %+v", cfg)
	}
	if cfg.Server.Listen != ":8931" || cfg.Server.BasePath != "/api" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFull(t *testing.T) {
	file := writeToml(t, `
ttl = "30s"
refresh_interval = "15s"
fetch_timeout = "3s"
fallback_wait = "2s"
fallback_poll = "50ms"

[server]
listen = "127.0.0.1:9000"
base_path = "/proc"

[log]
level = "debug"
format = "json"
[log.file]
path = "/tmp/proclist.log"
max_backups = 5

[journal]
enabled = true
dsn = "journal.db"
retention = "48h"
purge_schedule = "*/30 * * * *"
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TTL != 30*time.Second || cfg.RefreshInterval != 15*time.Second || cfg.FetchTimeout != 3*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.FallbackWait != 2*time.Second || cfg.FallbackPoll != 50*time.Millisecond {
		t.Fatalf("unexpected fallback knobs: %+v", cfg)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" || cfg.Server.BasePath != "/proc" {
		t.Fatalf("unexpected server: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || cfg.Log.File.Path != "/tmp/proclist.log" || cfg.Log.File.MaxBackups != 5 {
		t.Fatalf("unexpected log: %+v", cfg.Log)
	}
	if !cfg.Journal.Enabled || cfg.Journal.DSN != "journal.db" || cfg.Journal.Retention != 48*time.Hour {
		t.Fatalf("unexpected journal: %+v", cfg.Journal)
	}
	if cfg.Journal.PurgeSchedule != "*/30 * * * *" {
		t.Fatalf("unexpected purge schedule: %q", cfg.Journal.PurgeSchedule)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	file := writeToml(t, `
ttl = "1m"
[server]
listen = ":7000"
`)
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TTL != time.Minute {
		t.Fatalf("ttl override lost: %s", cfg.TTL)
	}
	if cfg.RefreshInterval != DefaultRefreshInterval || cfg.FallbackPoll != DefaultFallbackPoll {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
	if cfg.Server.Listen != ":7000" {
		t.Fatalf("listen override lost: %q", cfg.Server.Listen)
	}
	if cfg.Server.BasePath != DefaultBasePath {
		t.Fatalf("base_path default clobbered: %q", cfg.Server.BasePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.TTL = 0 }},
		{"negative refresh", func(c *Config) { c.RefreshInterval = -time.Second }},
		{"zero fetch timeout", func(c *Config) { c.FetchTimeout = 0 }},
		{"negative fallback wait", func(c *Config) { c.FallbackWait = -time.Millisecond }},
		{"zero fallback poll", func(c *Config) { c.FallbackPoll = 0 }},
		{"empty listen", func(c *Config) { c.Server.Listen = "" }},
		{"journal without dsn", func(c *Config) { c.Journal.Enabled = true; c.Journal.DSN = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateAllowsZeroFallbackWait(t *testing.T) {
	cfg := Default()
	cfg.FallbackWait = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero fallback_wait must validate: %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	file := writeToml(t, `ttl = "-5s"`)
	if _, err := Load(file); err == nil {
		t.Fatalf("expected validation error from Load")
	}
}

func TestWatchReloads(t *testing.T) {
	file := writeToml(t, `ttl = "10s"`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, file, slog.Default(), func(c Config) { got <- c })
	}()

	// Give the watcher a moment to register before mutating the file.
	time.Sleep(150 * time.Millisecond)

	// An unparseable write must not kill the watcher; the next valid
	// write must still come through.
	if err := os.WriteFile(file, []byte(`ttl = `), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := os.WriteFile(file, []byte(`ttl = "42s"`), 0o644); err != nil {
		t.Fatalf("write valid: %v", err)
	}

	// A truncate-then-write save can surface an intermediate empty-file
	// load; drain callbacks until the real content lands.
	deadline := time.After(5 * time.Second)
wait:
	for {
		select {
		case cfg := <-got:
			if cfg.TTL == 42*time.Second {
				break wait
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reload callback")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not stop after cancel")
	}
}
