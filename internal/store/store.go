// Package store provides the shared key-value substrate that window registries
// coordinate through. A Store is one "context" (one window): it can read and
// write every key, and it is told about writes made by other contexts, never
// about its own.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Change describes a committed write observed by another context.
type Change struct {
	// Key is the written key. An empty key means the whole store was cleared.
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
	Origin  string `json:"origin"`
}

// Cleared reports whether the change is a full-store wipe.
func (c Change) Cleared() bool {
	return c.Key == ""
}

// Store is a shared key-value store as seen from one context.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
	// Watch delivers changes to key (and full-store clears) committed by
	// other contexts. Pending undelivered changes are coalesced so that a
	// slow reader only sees the latest one. The channel is closed when ctx
	// ends or the store is closed.
	Watch(ctx context.Context, key string) (<-chan Change, error)
	// Origin identifies this context in Change.Origin.
	Origin() string
}

// Deliver hands c to a subscriber channel of capacity 1, replacing any change
// the subscriber has not consumed yet.
func Deliver(ch chan Change, c Change) {
	select {
	case ch <- c:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- c:
	default:
	}
}
