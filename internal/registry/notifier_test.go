package registry

import (
	"context"
	"testing"

	"github.com/1broseidon/windowsync/internal/geometry"
	"github.com/1broseidon/windowsync/internal/store"
)

func change(t *testing.T, s Snapshot) store.Change {
	t.Helper()
	value, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return store.Change{Key: KeyWindows, Value: value, Present: true, Origin: "peer"}
}

func TestNotifier_FiresOnStructuralChangeOnly(t *testing.T) {
	s1 := geometry.Shape{X: 0, Y: 0, W: 800, H: 600}
	s2 := geometry.Shape{X: 900, Y: 0, W: 800, H: 600}

	tests := []struct {
		name string
		from Snapshot
		to   Snapshot
		want bool
	}{
		{"peer joined", Snapshot{{ID: 1, Shape: s1}}, Snapshot{{ID: 1, Shape: s1}, {ID: 2, Shape: s2}}, true},
		{"peer left", Snapshot{{ID: 1}, {ID: 2}}, Snapshot{{ID: 1}}, true},
		{"reordered", Snapshot{{ID: 1}, {ID: 2}}, Snapshot{{ID: 2}, {ID: 1}}, true},
		{"same length, different id", Snapshot{{ID: 1}, {ID: 2}}, Snapshot{{ID: 1}, {ID: 3}}, true},
		{"shape only", Snapshot{{ID: 1, Shape: s1}, {ID: 2, Shape: s1}}, Snapshot{{ID: 1, Shape: s1}, {ID: 2, Shape: s2}}, false},
		{"identical", Snapshot{{ID: 1}}, Snapshot{{ID: 1}}, false},
		{"empty to empty", Snapshot{}, Snapshot{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNotifier(tt.from, nil)
			calls := 0
			var got Snapshot
			n.OnPeersChanged(func(s Snapshot) {
				calls++
				got = s
			})

			changed := n.Handle(change(t, tt.to))
			if changed != tt.want {
				t.Fatalf("Handle() = %v, want %v", changed, tt.want)
			}
			wantCalls := 0
			if tt.want {
				wantCalls = 1
			}
			if calls != wantCalls {
				t.Fatalf("callback calls = %d, want %d", calls, wantCalls)
			}
			if tt.want && !SameIDs(got, tt.to) {
				t.Fatalf("callback snapshot = %v, want %v", got.IDs(), tt.to.IDs())
			}
			if last := n.Last(); !SameIDs(last, tt.to) {
				t.Fatalf("Last() = %v, want %v", last.IDs(), tt.to.IDs())
			}
		})
	}
}

func TestNotifier_ClearAndCorruptCountAsEmpty(t *testing.T) {
	n := NewNotifier(Snapshot{{ID: 1}}, nil)
	if !n.Handle(store.Change{Origin: "peer"}) {
		t.Fatal("clear of a non-empty snapshot should fire")
	}
	if n.Handle(store.Change{Origin: "peer"}) {
		t.Fatal("second clear should not fire")
	}

	n.Seed(Snapshot{{ID: 4}})
	if !n.Handle(store.Change{Key: KeyWindows, Value: "{garbage", Present: true}) {
		t.Fatal("corrupt value should be treated as empty and fire")
	}
	if len(n.Last()) != 0 {
		t.Fatalf("Last() = %v, want empty", n.Last())
	}
}

func TestNotifier_OnlyFinalStateMatters(t *testing.T) {
	// Two joins coalesced into one delivery still produce one callback.
	n := NewNotifier(Snapshot{{ID: 1}}, nil)
	calls := 0
	n.OnPeersChanged(func(Snapshot) { calls++ })

	n.Handle(change(t, Snapshot{{ID: 1}, {ID: 2}, {ID: 3}}))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	in := Snapshot{
		{ID: 1, Shape: geometry.Shape{X: -10, Y: 20, W: 800, H: 600}},
		{ID: 7, Shape: geometry.Shape{X: 1920, Y: 0, W: 1280, H: 1024}, Metadata: map[string]string{"foo": "bar"}},
	}
	value, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := DecodeSnapshot(value)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].Shape != in[i].Shape || out[i].Metadata["foo"] != in[i].Metadata["foo"] {
			t.Fatalf("record %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestSnapshot_WireFormat(t *testing.T) {
	s := Snapshot{{ID: 1, Shape: geometry.Shape{X: 1, Y: 2, W: 3, H: 4}}}
	value, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `[{"id":1,"shape":{"x":1,"y":2,"w":3,"h":4}}]`
	if value != want {
		t.Fatalf("Encode() = %s, want %s", value, want)
	}

	var empty Snapshot
	if value, _ := empty.Encode(); value != "[]" {
		t.Fatalf("nil snapshot encodes as %s, want []", value)
	}
	if s, err := DecodeSnapshot("null"); err != nil || s == nil || len(s) != 0 {
		t.Fatalf("DecodeSnapshot(null) = %v, %v", s, err)
	}
}

func TestSnapshot_Without(t *testing.T) {
	s := Snapshot{{ID: 1}, {ID: 2}, {ID: 3}}
	got := s.Without(2)
	if !SameIDs(got, Snapshot{{ID: 1}, {ID: 3}}) {
		t.Fatalf("Without(2) = %v", got.IDs())
	}
	if !SameIDs(s, Snapshot{{ID: 1}, {ID: 2}, {ID: 3}}) {
		t.Fatalf("Without modified receiver: %v", s.IDs())
	}
	if got := s.Without(9); len(got) != 3 {
		t.Fatalf("Without(missing) len = %d, want 3", len(got))
	}
}

func TestNotifier_RunStopsOnClose(t *testing.T) {
	n := NewNotifier(nil, nil)
	ch := make(chan store.Change)
	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), ch)
		close(done)
	}()
	close(ch)
	<-done
}
