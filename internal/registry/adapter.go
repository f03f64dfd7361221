package registry

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/1broseidon/windowsync/internal/store"
)

// Adapter reads and writes the two registry keys. Reads never fail: missing,
// unreadable or malformed data is logged and replaced by an empty snapshot or
// a zero counter, so a broken store cannot stop a window from rendering.
type Adapter struct {
	store  store.Store
	logger *slog.Logger
}

// NewAdapter wraps st. A nil logger discards output.
func NewAdapter(st store.Store, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = discardLogger()
	}
	return &Adapter{store: st, logger: logger}
}

// Store returns the underlying store.
func (a *Adapter) Store() store.Store {
	return a.store
}

// Snapshot returns the persisted snapshot, or an empty one.
func (a *Adapter) Snapshot(ctx context.Context) Snapshot {
	value, ok, err := a.store.Get(ctx, KeyWindows)
	if err != nil {
		a.logger.Warn("store unavailable, using empty snapshot", "key", KeyWindows, "error", err)
		return Snapshot{}
	}
	if !ok {
		return Snapshot{}
	}
	return a.decode(value)
}

func (a *Adapter) decode(value string) Snapshot {
	s, err := DecodeSnapshot(value)
	if err != nil {
		a.logger.Warn("corrupt snapshot, using empty snapshot", "key", KeyWindows, "error", err)
		return Snapshot{}
	}
	return s
}

// SetSnapshot persists s.
func (a *Adapter) SetSnapshot(ctx context.Context, s Snapshot) error {
	value, err := s.Encode()
	if err != nil {
		a.logger.Warn("failed to encode snapshot", "key", KeyWindows, "error", err)
		return err
	}
	if err := a.store.Set(ctx, KeyWindows, value); err != nil {
		a.logger.Warn("failed to write snapshot", "key", KeyWindows, "error", err)
		return err
	}
	return nil
}

// Counter returns the persisted join counter, or 0.
func (a *Adapter) Counter(ctx context.Context) int {
	value, ok, err := a.store.Get(ctx, KeyCount)
	if err != nil {
		a.logger.Warn("store unavailable, using zero counter", "key", KeyCount, "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	n, err := parseCounter(value)
	if err != nil {
		a.logger.Warn("corrupt counter, using zero", "key", KeyCount, "value", value, "error", err)
		return 0
	}
	return n
}

// SetCounter persists n.
func (a *Adapter) SetCounter(ctx context.Context, n int) error {
	if err := a.store.Set(ctx, KeyCount, strconv.Itoa(n)); err != nil {
		a.logger.Warn("failed to write counter", "key", KeyCount, "error", err)
		return err
	}
	return nil
}

// Clear wipes the whole store.
func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		a.logger.Warn("failed to clear store", "error", err)
		return err
	}
	return nil
}

// parseCounter accepts a plain integer, optionally JSON-quoted.
func parseCounter(value string) (int, error) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
