package registry

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/windowsync/internal/geometry"
)

// Persisted keys in the shared store.
const (
	KeyWindows = "windows"
	KeyCount   = "count"
)

// Record is one window's entry in the shared registry.
type Record struct {
	ID       int               `json:"id"`
	Shape    geometry.Shape    `json:"shape"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Snapshot is the ordered list of records, in join order.
type Snapshot []Record

// Encode serializes the snapshot. A nil snapshot encodes as an empty array.
func (s Snapshot) Encode() (string, error) {
	if s == nil {
		s = Snapshot{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(data), nil
}

// DecodeSnapshot parses a serialized snapshot. JSON null decodes to an empty
// snapshot.
func DecodeSnapshot(value string) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s == nil {
		s = Snapshot{}
	}
	return s, nil
}

// IDs returns the record ids in order.
func (s Snapshot) IDs() []int {
	ids := make([]int, len(s))
	for i, r := range s {
		ids[i] = r.ID
	}
	return ids
}

// Index returns the position of the first record with id, or -1.
func (s Snapshot) Index(id int) int {
	for i, r := range s {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the first record with id.
func (s Snapshot) Find(id int) (Record, bool) {
	if i := s.Index(id); i >= 0 {
		return s[i], true
	}
	return Record{}, false
}

// MaxID returns the largest id present, or 0.
func (s Snapshot) MaxID() int {
	max := 0
	for _, r := range s {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

// Without returns a copy with the first record matching id removed.
func (s Snapshot) Without(id int) Snapshot {
	out := make(Snapshot, 0, len(s))
	removed := false
	for _, r := range s {
		if !removed && r.ID == id {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out
}

// SameIDs is the structural diff used for peer-change detection: two
// snapshots are the same when they have equal length and equal ids at every
// position. Shapes are ignored.
func SameIDs(a, b Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
