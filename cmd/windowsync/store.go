package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/1broseidon/windowsync/internal/config"
	"github.com/1broseidon/windowsync/internal/ipc"
	"github.com/1broseidon/windowsync/internal/store"
)

// openStore connects to the backend named by cfg. The returned func releases
// it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendDaemon:
		socketPath, err := cfg.ResolveSocketPath()
		if err != nil {
			return nil, nil, err
		}
		client := ipc.NewClient(socketPath)
		if err := client.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("daemon not reachable at %s (run 'windowsync daemon'): %w", socketPath, err)
		}
		return client, func() {}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return store.NewRedisStore(client, cfg.Redis.Prefix), func() { client.Close() }, nil

	case config.BackendMemory:
		broker := store.NewMemory()
		return broker.NewContext(), func() { broker.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// metaFlag collects repeated --meta key=value flags.
type metaFlag map[string]string

func (m metaFlag) String() string {
	return formatMetadata(m)
}

func (m metaFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	m[key] = val
	return nil
}

func formatMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ",")
}

// mergeMetadata overlays flags onto the configured metadata.
func mergeMetadata(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
