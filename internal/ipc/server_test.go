package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/1broseidon/windowsync/internal/store"
)

func startServer(t *testing.T, socketPath string, broker *store.Broker) *Server {
	t.Helper()
	srv := NewServer(socketPath, "", broker, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return srv
}

func socketPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "ws.sock")
}

func recv(t *testing.T, ch <-chan store.Change) store.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed")
		}
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return store.Change{}
}

func TestClient_GetSetClear(t *testing.T) {
	ctx := context.Background()
	path := socketPath(t)
	srv := startServer(t, path, store.NewMemory())
	defer srv.Stop()

	c := NewClient(path)
	if _, ok, err := c.Get(ctx, "windows"); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}
	if err := c.Set(ctx, "windows", `[{"id":1}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	other := NewClient(path)
	got, ok, err := other.Get(ctx, "windows")
	if err != nil || !ok || got != `[{"id":1}]` {
		t.Fatalf("Get = (%q, %v, %v)", got, ok, err)
	}

	if err := other.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "windows"); ok {
		t.Fatal("expected key to be gone after Clear")
	}
}

func TestClient_WatchDeliversPeerWritesOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := socketPath(t)
	broker := store.NewMemory()
	srv := startServer(t, path, broker)
	defer srv.Stop()

	a, b := NewClient(path), NewClient(path)
	ch, err := a.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := a.Set(ctx, "windows", "own"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "windows", "peer"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got := recv(t, ch)
	if got.Value != "peer" || got.Origin != b.Origin() {
		t.Fatalf("change = %+v, want peer write from %s", got, b.Origin())
	}

	status, err := b.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.DaemonRunning || status.Watchers != 1 {
		t.Fatalf("status = %+v, want running with 1 watcher", status)
	}
}

func TestClient_WatchClosesOnCancel(t *testing.T) {
	path := socketPath(t)
	broker := store.NewMemory()
	srv := startServer(t, path, broker)
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewClient(path).Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	deadline := time.Now().Add(5 * time.Second)
	for broker.Watchers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Watchers() = %d after client cancel, want 0", broker.Watchers())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_WatchReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := socketPath(t)
	broker := store.NewMemory()
	srv := startServer(t, path, broker)

	watcher := NewClient(path)
	ch, err := watcher.Watch(ctx, "windows")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	srv.Stop()
	srv = startServer(t, path, broker)
	defer srv.Stop()

	writer := NewClient(path)
	deadline := time.After(10 * time.Second)
	for {
		if err := writer.Set(ctx, "windows", "after-restart"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		select {
		case c, ok := <-ch:
			if !ok {
				t.Fatal("watch channel closed during reconnect")
			}
			if c.Value == "after-restart" {
				return
			}
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("watch did not recover after daemon restart")
		}
	}
}

func TestClient_WatchFailsWithoutDaemon(t *testing.T) {
	_, err := NewClient(socketPath(t)).Watch(context.Background(), "windows")
	if err == nil {
		t.Fatal("expected error when daemon is not running")
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	path := socketPath(t)
	srv := startServer(t, path, store.NewMemory())
	defer srv.Stop()

	_, err := NewClient(path).sendRequest(context.Background(), CommandType("BOGUS"), nil)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}
