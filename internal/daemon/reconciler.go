package daemon

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/1broseidon/windowsync/internal/registry"
	"github.com/1broseidon/windowsync/internal/store"
)

// WindowIDMetadataKey is the record metadata key holding the X11 window id a
// participant tracks. Only records carrying it are eligible for pruning.
const WindowIDMetadataKey = "x11_window"

// WindowLister returns the ids of windows that currently exist.
type WindowLister func() ([]uint32, error)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically drops records whose X11 window no longer exists,
// which is what a participant killed before it could leave leaves behind.
type Reconciler struct {
	interval    time.Duration
	adapter     *registry.Adapter
	listWindows WindowLister
	logger      *slog.Logger
}

// NewReconciler creates a reconciler writing through st.
func NewReconciler(cfg ReconcilerConfig, st store.Store, listWindows WindowLister) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval:    interval,
		adapter:     registry.NewAdapter(st, logger),
		listWindows: listWindows,
		logger:      logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.ReconcileNow(ctx)
		}
	}
}

// ReconcileNow performs a single pass and returns the pruned ids.
func (r *Reconciler) ReconcileNow(ctx context.Context) []int {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	snapshot := r.adapter.Snapshot(ctx)
	if len(snapshot) == 0 {
		return nil
	}

	actual, err := r.listWindows()
	if err != nil {
		r.logger.Error("reconciler: failed to list windows", "error", err)
		return nil
	}
	live := make(map[uint32]bool, len(actual))
	for _, wid := range actual {
		live[wid] = true
	}

	kept := make(registry.Snapshot, 0, len(snapshot))
	var pruned []int
	for _, rec := range snapshot {
		wid, ok := trackedWindow(rec)
		if ok && !live[wid] {
			r.logger.Info("reconciler: pruning stale record", "id", rec.ID, "window_id", wid)
			pruned = append(pruned, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	if len(pruned) == 0 {
		return nil
	}

	if err := r.adapter.SetSnapshot(ctx, kept); err != nil {
		r.logger.Warn("reconciler: failed to write snapshot", "error", err)
		return nil
	}
	return pruned
}

func trackedWindow(rec registry.Record) (uint32, bool) {
	raw, ok := rec.Metadata[WindowIDMetadataKey]
	if !ok {
		return 0, false
	}
	wid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || wid == 0 {
		return 0, false
	}
	return uint32(wid), true
}
