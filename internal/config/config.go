package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/windowsync/internal/registry"
	"github.com/1broseidon/windowsync/internal/runtimepath"
)

// Backend selects the shared store a window coordinates through.
type Backend string

const (
	BackendDaemon Backend = "daemon" // windowsync daemon over its unix socket (bbolt-backed)
	BackendRedis  Backend = "redis"  // shared Redis instance with pub/sub notifications
	BackendMemory Backend = "memory" // in-process only; useful for a single window and tests
)

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	// Prefix namespaces keys and the change channel.
	Prefix string `yaml:"prefix"`
}

// Config is the effective windowsync configuration.
type Config struct {
	Backend    Backend     `yaml:"backend"`
	SocketPath string      `yaml:"socket_path,omitempty"` // default: <runtime dir>/windowsync.sock
	StorePath  string      `yaml:"store_path,omitempty"`  // default: ~/.local/share/windowsync/store.db
	HTTPListen string      `yaml:"http_listen"`           // empty disables the daemon's HTTP API
	Redis      RedisConfig `yaml:"redis"`

	// TickInterval is how often the local shape watcher polls geometry.
	TickInterval time.Duration `yaml:"tick_interval"`
	// RegistrationDelay defers the first join so the host can settle its
	// window geometry.
	RegistrationDelay time.Duration `yaml:"registration_delay"`
	// ReconcileInterval makes the daemon prune records of X11 windows that
	// no longer exist. Zero disables it.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	LeaveMode registry.LeaveMode `yaml:"leave_mode"`
	JoinRetry bool               `yaml:"join_retry"`

	LogLevel string            `yaml:"log_level"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// DefaultConfig returns built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:    BackendDaemon,
		HTTPListen: "127.0.0.1:7788",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "windowsync:",
		},
		TickInterval:      16 * time.Millisecond,
		RegistrationDelay: 500 * time.Millisecond,
		LeaveMode:         registry.LeaveByID,
		JoinRetry:         true,
		LogLevel:          "info",
	}
}

// ValidationError ties a validation failure to a YAML path and, when known,
// the file position that set it.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDaemon, BackendRedis, BackendMemory:
	default:
		return &ValidationError{Path: "backend", Err: fmt.Errorf("backend must be one of: daemon, redis, memory")}
	}
	if c.Backend == BackendRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		return &ValidationError{Path: "redis.addr", Err: fmt.Errorf("redis.addr is required for the redis backend")}
	}
	if c.Backend == BackendRedis && c.Redis.Prefix == "" {
		return &ValidationError{Path: "redis.prefix", Err: fmt.Errorf("redis.prefix must not be empty")}
	}
	if c.Redis.DB < 0 {
		return &ValidationError{Path: "redis.db", Err: fmt.Errorf("redis.db must be >= 0")}
	}
	if c.TickInterval <= 0 {
		return &ValidationError{Path: "tick_interval", Err: fmt.Errorf("tick_interval must be > 0")}
	}
	if c.RegistrationDelay < 0 {
		return &ValidationError{Path: "registration_delay", Err: fmt.Errorf("registration_delay must be >= 0")}
	}
	if c.ReconcileInterval < 0 {
		return &ValidationError{Path: "reconcile_interval", Err: fmt.Errorf("reconcile_interval must be >= 0")}
	}
	switch c.LeaveMode {
	case registry.LeaveByID, registry.LeavePopLast:
	default:
		return &ValidationError{Path: "leave_mode", Err: fmt.Errorf("leave_mode must be one of: by-id, pop-last")}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return &ValidationError{Path: "log_level", Err: err}
	}
	for key := range c.Metadata {
		if strings.TrimSpace(key) == "" {
			return &ValidationError{Path: "metadata", Err: fmt.Errorf("metadata contains an empty key")}
		}
	}
	return nil
}

// ResolveSocketPath returns SocketPath or the runtime default.
func (c *Config) ResolveSocketPath() (string, error) {
	if c.SocketPath != "" {
		return c.SocketPath, nil
	}
	return runtimepath.SocketPath()
}

// ResolveStorePath returns StorePath or the data-dir default.
func (c *Config) ResolveStorePath() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	return runtimepath.StorePath()
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// RegistryOptions maps the config onto registry options.
func (c *Config) RegistryOptions(logger *slog.Logger) registry.Options {
	return registry.Options{
		Logger:    logger,
		LeaveMode: c.LeaveMode,
		JoinRetry: c.JoinRetry,
		Metadata:  c.Metadata,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
}
