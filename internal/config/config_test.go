package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/windowsync/internal/registry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromPathMissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if res.File != "" {
		t.Fatalf("expected no file, got %q", res.File)
	}
	if res.Config.Backend != BackendDaemon || res.Config.TickInterval != 16*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", res.Config)
	}
}

func TestLoadFromPathEmptyFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if res.Config.RegistrationDelay != 500*time.Millisecond {
		t.Fatalf("registration_delay = %v", res.Config.RegistrationDelay)
	}
	if !res.Config.JoinRetry {
		t.Fatalf("expected join_retry default true")
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	path := writeConfig(t, `backend: redis
redis:
  addr: 10.0.0.5:6379
  prefix: "demo:"
tick_interval: 50ms
registration_delay: 0s
leave_mode: pop-last
join_retry: false
log_level: debug
metadata:
  title: editor
`)
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	cfg := res.Config
	if cfg.Backend != BackendRedis {
		t.Fatalf("backend = %q", cfg.Backend)
	}
	if cfg.Redis.Addr != "10.0.0.5:6379" || cfg.Redis.Prefix != "demo:" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.TickInterval != 50*time.Millisecond || cfg.RegistrationDelay != 0 {
		t.Fatalf("durations = %v / %v", cfg.TickInterval, cfg.RegistrationDelay)
	}
	if cfg.LeaveMode != registry.LeavePopLast || cfg.JoinRetry {
		t.Fatalf("leave_mode=%q join_retry=%v", cfg.LeaveMode, cfg.JoinRetry)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.SlogLevel())
	}
	if cfg.Metadata["title"] != "editor" {
		t.Fatalf("metadata = %v", cfg.Metadata)
	}
	// Unset keys keep their defaults.
	if cfg.HTTPListen != "127.0.0.1:7788" {
		t.Fatalf("http_listen = %q", cfg.HTTPListen)
	}
	if src, ok := res.Sources["redis.addr"]; !ok || src.Line != 3 {
		t.Fatalf("redis.addr source = %+v", src)
	}
}

func TestLoadFromPathInvalidValueReportsPosition(t *testing.T) {
	path := writeConfig(t, "log_level: info\nbackend: carrier-pigeon\n")
	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Path != "backend" || verr.Source.Line != 2 {
		t.Fatalf("unexpected validation error: %+v", verr)
	}
	if !strings.Contains(err.Error(), path+":2:") {
		t.Fatalf("error should include file position: %v", err)
	}
}

func TestLoadFromPathRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromPath(writeConfig(t, "backend: memory\nhotkey: Mod4-g\n"))
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, "tick_interval"},
		{"negative delay", func(c *Config) { c.RegistrationDelay = -time.Second }, "registration_delay"},
		{"negative reconcile", func(c *Config) { c.ReconcileInterval = -time.Second }, "reconcile_interval"},
		{"leave mode", func(c *Config) { c.LeaveMode = "shift" }, "leave_mode"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"redis addr", func(c *Config) { c.Backend = BackendRedis; c.Redis.Addr = "" }, "redis.addr"},
		{"redis prefix", func(c *Config) { c.Backend = BackendRedis; c.Redis.Prefix = "" }, "redis.prefix"},
		{"redis db", func(c *Config) { c.Redis.DB = -1 }, "redis.db"},
		{"metadata key", func(c *Config) { c.Metadata = map[string]string{" ": "x"} }, "metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}

func TestResolvePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SocketPath = "/tmp/custom.sock"
	cfg.StorePath = "/tmp/custom.db"
	if got, _ := cfg.ResolveSocketPath(); got != "/tmp/custom.sock" {
		t.Fatalf("socket = %q", got)
	}
	if got, _ := cfg.ResolveStorePath(); got != "/tmp/custom.db" {
		t.Fatalf("store = %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	cfg.SocketPath = ""
	got, err := cfg.ResolveSocketPath()
	if err != nil {
		t.Fatalf("ResolveSocketPath: %v", err)
	}
	if filepath.Base(got) != "windowsync.sock" {
		t.Fatalf("socket = %q", got)
	}
}
