package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

func expectNone(t *testing.T, ch <-chan Change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected change: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_GetSetSharedAcrossContexts(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	a, c := b.NewContext(), b.NewContext()

	if _, ok, err := c.Get(ctx, "windows"); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}
	if err := a.Set(ctx, "windows", "[]"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "windows")
	if err != nil || !ok || got != "[]" {
		t.Fatalf("Get = (%q, %v, %v), want (\"[]\", true, nil)", got, ok, err)
	}
}

func TestBroker_WatchSkipsOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemory()
	a, c := b.NewContext(), b.NewContext()

	own, err := a.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	peer, err := c.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := a.Set(ctx, "windows", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got := recv(t, peer)
	if got.Key != "windows" || got.Value != "v1" || got.Origin != a.Origin() {
		t.Fatalf("change = %+v", got)
	}
	expectNone(t, own)
}

func TestBroker_WatchFiltersKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemory()
	a, c := b.NewContext(), b.NewContext()
	ch, err := c.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := a.Set(ctx, "count", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	expectNone(t, ch)

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := recv(t, ch); !got.Cleared() {
		t.Fatalf("expected clear change, got %+v", got)
	}
}

func TestBroker_CoalescesPendingChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemory()
	a, c := b.NewContext(), b.NewContext()
	ch, err := c.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for _, v := range []string{"v1", "v2", "v3"} {
		if err := a.Set(ctx, "windows", v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	if got := recv(t, ch); got.Value != "v3" {
		t.Fatalf("coalesced value = %q, want v3", got.Value)
	}
	expectNone(t, ch)
}

func TestBroker_WatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewMemory()
	ch, err := b.NewContext().Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	deadline := time.Now().Add(time.Second)
	for b.Watchers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := b.Watchers(); n != 0 {
		t.Fatalf("Watchers() = %d, want 0", n)
	}
}

func TestBroker_ClosedRejectsOperations(t *testing.T) {
	b := NewMemory()
	c := b.NewContext()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Set(context.Background(), "windows", "[]"); err != ErrClosed {
		t.Fatalf("Set after close = %v, want ErrClosed", err)
	}
	if _, err := c.Watch(context.Background(), "windows"); err != ErrClosed {
		t.Fatalf("Watch after close = %v, want ErrClosed", err)
	}
}

func TestBoltBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")

	backend, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := backend.Set("count", "3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	backend, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer backend.Close()

	got, ok, err := backend.Get("count")
	if err != nil || !ok || got != "3" {
		t.Fatalf("Get = (%q, %v, %v), want (\"3\", true, nil)", got, ok, err)
	}

	if err := backend.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := backend.Get("count"); ok {
		t.Fatal("expected key to be gone after Clear")
	}
}

func TestBroker_OverBolt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := OpenBolt(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	b := NewBroker(backend)
	defer b.Close()

	a, c := b.Context("a"), b.Context("c")
	ch, err := c.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := a.Set(ctx, "windows", `[{"id":1}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := recv(t, ch); got.Origin != "a" || got.Value != `[{"id":1}]` {
		t.Fatalf("change = %+v", got)
	}
}

func TestAcceptChange(t *testing.T) {
	tests := []struct {
		name string
		c    Change
		want bool
	}{
		{"own write", Change{Key: "windows", Origin: "me"}, false},
		{"peer write to key", Change{Key: "windows", Origin: "peer"}, true},
		{"peer write to other key", Change{Key: "count", Origin: "peer"}, false},
		{"peer clear", Change{Origin: "peer"}, true},
		{"own clear", Change{Origin: "me"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acceptChange(tt.c, "me", "windows"); got != tt.want {
				t.Errorf("acceptChange(%+v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}
