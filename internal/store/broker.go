package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Backend is a persistent key-value map without change notification.
type Backend interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Clear() error
	Close() error
}

type subscription struct {
	origin string
	key    string
	ch     chan Change
}

// Broker serializes writes to a Backend and fans committed changes out to
// every context except the writer.
type Broker struct {
	mu      sync.Mutex
	backend Backend
	subs    map[*subscription]struct{}
	closed  bool
}

// NewBroker wraps backend.
func NewBroker(backend Backend) *Broker {
	return &Broker{
		backend: backend,
		subs:    make(map[*subscription]struct{}),
	}
}

// NewMemory returns a broker over an in-process map. Each call to NewContext
// behaves like a separate window sharing the same storage.
func NewMemory() *Broker {
	return NewBroker(newMapBackend())
}

// NewContext returns a context with a fresh random origin.
func (b *Broker) NewContext() *Context {
	return b.Context(uuid.NewString())
}

// Context returns the view of the store for origin.
func (b *Broker) Context(origin string) *Context {
	return &Context{broker: b, origin: origin}
}

// Watchers returns the number of active subscriptions.
func (b *Broker) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription and the backend.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	return b.backend.Close()
}

func (b *Broker) get(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false, ErrClosed
	}
	return b.backend.Get(key)
}

func (b *Broker) set(origin, key, value string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.backend.Set(key, value); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	b.publish(Change{Key: key, Value: value, Present: true, Origin: origin})
	return nil
}

func (b *Broker) clear(origin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.backend.Clear(); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	b.publish(Change{Origin: origin})
	return nil
}

// publish must be called with b.mu held.
func (b *Broker) publish(c Change) {
	for sub := range b.subs {
		if sub.origin == c.Origin {
			continue
		}
		if !c.Cleared() && sub.key != c.Key {
			continue
		}
		Deliver(sub.ch, c)
	}
}

func (b *Broker) watch(ctx context.Context, origin, key string) (<-chan Change, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &subscription{origin: origin, key: key, ch: make(chan Change, 1)}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
	}()

	return sub.ch, nil
}

// Context is one origin's view of a Broker.
type Context struct {
	broker *Broker
	origin string
}

var _ Store = (*Context)(nil)

func (c *Context) Origin() string { return c.origin }

func (c *Context) Get(_ context.Context, key string) (string, bool, error) {
	return c.broker.get(key)
}

func (c *Context) Set(_ context.Context, key, value string) error {
	return c.broker.set(c.origin, key, value)
}

func (c *Context) Clear(_ context.Context) error {
	return c.broker.clear(c.origin)
}

func (c *Context) Watch(ctx context.Context, key string) (<-chan Change, error) {
	return c.broker.watch(ctx, c.origin, key)
}

// mapBackend is the in-memory Backend used by NewMemory.
type mapBackend struct {
	values map[string]string
}

func newMapBackend() *mapBackend {
	return &mapBackend{values: make(map[string]string)}
}

func (m *mapBackend) Get(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapBackend) Set(key, value string) error {
	m.values[key] = value
	return nil
}

func (m *mapBackend) Clear() error {
	m.values = make(map[string]string)
	return nil
}

func (m *mapBackend) Close() error { return nil }
