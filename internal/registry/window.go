package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/windowsync/internal/geometry"
	"github.com/1broseidon/windowsync/internal/store"
)

// Window is the surface the rendering layer talks to. It ties together the
// registry, the peer-change notifier and the local shape watcher for one
// window. The rendering layer owns every visual; Window only reports records
// and shapes.
type Window struct {
	store    store.Store
	registry *Registry
	notifier *Notifier
	watcher  *ShapeWatcher
	logger   *slog.Logger
}

// NewWindow builds the components for one window over st.
func NewWindow(st store.Store, source geometry.Source, opts Options) *Window {
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	reg := New(st, source, opts)
	return &Window{
		store:    st,
		registry: reg,
		notifier: NewNotifier(nil, opts.Logger),
		watcher:  NewShapeWatcher(reg),
		logger:   opts.Logger,
	}
}

// Registry exposes the underlying registry.
func (w *Window) Registry() *Registry { return w.registry }

// OnPeersChanged registers the handler fired when peers join, leave or are
// reordered.
func (w *Window) OnPeersChanged(fn func(Snapshot)) {
	w.notifier.OnPeersChanged(fn)
}

// OnShapeChanged registers the handler fired when this window moves or
// resizes.
func (w *Window) OnShapeChanged(fn func(geometry.Shape)) {
	w.watcher.OnShapeChanged(fn)
}

// Watch subscribes to peer writes of the windows key. Notifications are
// handled on a background goroutine until ctx ends. Call it before Join so a
// peer joining concurrently is not missed.
func (w *Window) Watch(ctx context.Context) error {
	changes, err := w.store.Watch(ctx, KeyWindows)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", KeyWindows, err)
	}
	go w.notifier.Run(ctx, changes)
	return nil
}

// Join registers this window and returns its id.
func (w *Window) Join(ctx context.Context) int {
	rec := w.registry.Join(ctx)
	w.notifier.Seed(w.registry.Peers(ctx))
	return rec.ID
}

// Leave removes this window's record.
func (w *Window) Leave(ctx context.Context) {
	w.registry.Leave(ctx)
}

// Peers returns the latest snapshot from the store.
func (w *Window) Peers(ctx context.Context) Snapshot {
	return w.registry.Peers(ctx)
}

// Own returns this window's record if joined.
func (w *Window) Own() (Record, bool) {
	return w.registry.Own()
}

// OwnShape returns this window's last published shape.
func (w *Window) OwnShape() geometry.Shape {
	return w.registry.OwnShape()
}

// Tick runs the shape watcher once.
func (w *Window) Tick(ctx context.Context) bool {
	return w.watcher.Tick(ctx)
}

// Run ticks the shape watcher every interval until ctx ends. It stands in
// for the host's frame callback.
func (w *Window) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}
