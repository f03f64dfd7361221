package registry

import (
	"context"
	"sync"

	"github.com/1broseidon/windowsync/internal/geometry"
)

// ShapeWatcher polls local geometry once per render tick. Local geometry has
// no change event, so it is polled; peer lists are pushed through Notifier.
type ShapeWatcher struct {
	registry *Registry

	mu      sync.Mutex
	onShape func(geometry.Shape)
}

// NewShapeWatcher watches the geometry source of r.
func NewShapeWatcher(r *Registry) *ShapeWatcher {
	return &ShapeWatcher{registry: r}
}

// OnShapeChanged registers the callback, replacing any previous one.
func (w *ShapeWatcher) OnShapeChanged(fn func(geometry.Shape)) {
	w.mu.Lock()
	w.onShape = fn
	w.mu.Unlock()
}

// Tick reads the current geometry and, if it differs from the last published
// shape, republishes it and fires the callback. Unchanged ticks never write.
func (w *ShapeWatcher) Tick(ctx context.Context) bool {
	shape := w.registry.source.CurrentShape()
	if !w.registry.PublishShape(ctx, shape) {
		return false
	}

	w.mu.Lock()
	fn := w.onShape
	w.mu.Unlock()
	if fn != nil {
		fn(shape)
	}
	return true
}
