// Package registry implements the cross-window registry: every participating
// window keeps its record in a shared snapshot, learns about peers through
// store change notifications, and republishes its own geometry when it moves.
//
// There is no locking across windows. Every mutation is a read-modify-write
// of the whole snapshot, so concurrent writers resolve as last-writer-wins
// and the registry converges once writes stop.
package registry

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/1broseidon/windowsync/internal/geometry"
	"github.com/1broseidon/windowsync/internal/store"
)

// LeaveMode selects which record Leave removes.
type LeaveMode string

const (
	// LeaveByID removes the record carrying this window's id.
	LeaveByID LeaveMode = "by-id"
	// LeavePopLast removes the last record regardless of id. Only correct
	// when windows close in reverse join order.
	LeavePopLast LeaveMode = "pop-last"
)

// Options configures a Registry.
type Options struct {
	Logger    *slog.Logger
	LeaveMode LeaveMode
	// JoinRetry re-reads the counter after claiming an id and claims a new
	// one if another window advanced it in between.
	JoinRetry bool
	Metadata  map[string]string
}

// Registry owns this window's record and its view of the shared snapshot.
type Registry struct {
	adapter   *Adapter
	source    geometry.Source
	logger    *slog.Logger
	leaveMode LeaveMode
	joinRetry bool
	metadata  map[string]string

	mu  sync.Mutex
	own *Record
}

// New creates a registry for one window.
func New(st store.Store, source geometry.Source, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	mode := opts.LeaveMode
	if mode == "" {
		mode = LeaveByID
	}
	if source == nil {
		source = geometry.Static{}
	}

	return &Registry{
		adapter:   NewAdapter(st, logger),
		source:    source,
		logger:    logger,
		leaveMode: mode,
		joinRetry: opts.JoinRetry,
		metadata:  maps.Clone(opts.Metadata),
	}
}

// Adapter returns the store adapter used by the registry.
func (r *Registry) Adapter() *Adapter {
	return r.adapter
}

// Join claims the next id, appends this window's record to the shared
// snapshot and returns it. Joining twice returns the existing record.
//
// Two windows joining at the same moment can claim the same id; this is not
// detected.
func (r *Registry) Join(ctx context.Context) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.own != nil {
		return *r.own
	}

	id := r.claimID(ctx)
	rec := Record{
		ID:       id,
		Shape:    r.source.CurrentShape(),
		Metadata: maps.Clone(r.metadata),
	}

	peers := r.adapter.Snapshot(ctx)
	peers = append(peers, rec)
	r.adapter.SetSnapshot(ctx, peers)

	r.own = &rec
	r.logger.Info("joined", "id", id, "shape", rec.Shape.String(), "peers", len(peers))
	return rec
}

func (r *Registry) claimID(ctx context.Context) int {
	c := r.adapter.Counter(ctx)
	// A lost or corrupt counter must not hand out ids still in use.
	if highest := r.adapter.Snapshot(ctx).MaxID(); highest > c {
		c = highest
	}
	id := c + 1
	if err := r.adapter.SetCounter(ctx, id); err != nil || !r.joinRetry {
		return id
	}
	if got := r.adapter.Counter(ctx); got != id {
		retry := max(got, id) + 1
		r.logger.Debug("join counter moved, claiming again", "claimed", id, "observed", got, "retry", retry)
		id = retry
		r.adapter.SetCounter(ctx, id)
	}
	return id
}

// Leave removes this window's record from the shared snapshot. It is a no-op
// when the window has not joined.
func (r *Registry) Leave(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.own == nil {
		return
	}
	id := r.own.ID
	r.own = nil

	peers := r.adapter.Snapshot(ctx)
	var remaining Snapshot
	switch r.leaveMode {
	case LeavePopLast:
		if len(peers) == 0 {
			return
		}
		remaining = peers[:len(peers)-1]
	default:
		remaining = peers.Without(id)
		if len(remaining) == len(peers) {
			r.logger.Debug("own record already gone", "id", id)
			return
		}
	}

	r.adapter.SetSnapshot(ctx, remaining)
	r.logger.Info("left", "id", id, "peers", len(remaining))
}

// Peers returns the latest persisted snapshot, read fresh from the store.
func (r *Registry) Peers(ctx context.Context) Snapshot {
	return r.adapter.Snapshot(ctx)
}

// Own returns this window's record if it has joined.
func (r *Registry) Own() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.own == nil {
		return Record{}, false
	}
	return *r.own, true
}

// OwnShape returns the last published shape, or the current geometry when
// the window has not joined.
func (r *Registry) OwnShape() geometry.Shape {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.own != nil {
		return r.own.Shape
	}
	return r.source.CurrentShape()
}

// PublishShape stores shape in this window's record and persists the
// snapshot. It reports false without changing the record when the shape is
// unchanged, the window has not joined, or the write fails; a failed write is
// retried by the next call. If the record went missing from the snapshot (a
// peer's concurrent write dropped it) it is appended again.
func (r *Registry) PublishShape(ctx context.Context, shape geometry.Shape) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.own == nil || r.own.Shape.Equal(shape) {
		return false
	}
	rec := *r.own
	rec.Shape = shape

	peers := r.adapter.Snapshot(ctx)
	if i := peers.Index(rec.ID); i >= 0 {
		peers[i] = rec
	} else {
		r.logger.Warn("own record missing from snapshot, restoring", "id", rec.ID)
		peers = append(peers, rec)
	}
	if err := r.adapter.SetSnapshot(ctx, peers); err != nil {
		return false
	}
	r.own.Shape = shape
	r.logger.Debug("shape published", "id", rec.ID, "shape", shape.String())
	return true
}

// Reset wipes the shared store and forgets this window's record.
func (r *Registry) Reset(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapter.Clear(ctx)
	r.own = nil
}
