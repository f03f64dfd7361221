package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/1broseidon/windowsync/internal/store"
)

// Notifier turns store change notifications for the windows key into
// "peers changed" callbacks. It only fires when the set or order of ids
// differs from the last snapshot it saw; shape-only updates are ignored.
type Notifier struct {
	logger *slog.Logger

	mu       sync.Mutex
	last     Snapshot
	onChange func(Snapshot)
}

// NewNotifier starts from initial as the last observed snapshot.
func NewNotifier(initial Snapshot, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = discardLogger()
	}
	if initial == nil {
		initial = Snapshot{}
	}
	return &Notifier{logger: logger, last: initial}
}

// OnPeersChanged registers the callback, replacing any previous one.
func (n *Notifier) OnPeersChanged(fn func(Snapshot)) {
	n.mu.Lock()
	n.onChange = fn
	n.mu.Unlock()
}

// Seed replaces the last observed snapshot without firing the callback.
func (n *Notifier) Seed(s Snapshot) {
	if s == nil {
		s = Snapshot{}
	}
	n.mu.Lock()
	n.last = s
	n.mu.Unlock()
}

// Last returns the last observed snapshot.
func (n *Notifier) Last() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

// Handle processes one notification and reports whether the callback fired.
// A clear, a removed key, or an undecodable value all count as an empty
// snapshot.
func (n *Notifier) Handle(c store.Change) bool {
	next := Snapshot{}
	if !c.Cleared() && c.Present {
		s, err := DecodeSnapshot(c.Value)
		if err != nil {
			n.logger.Warn("corrupt snapshot in notification", "key", c.Key, "origin", c.Origin, "error", err)
		} else {
			next = s
		}
	}

	n.mu.Lock()
	changed := !SameIDs(n.last, next)
	n.last = next
	fn := n.onChange
	n.mu.Unlock()

	if changed {
		n.logger.Debug("peers changed", "ids", next.IDs(), "origin", c.Origin)
		if fn != nil {
			fn(next)
		}
	}
	return changed
}

// Run consumes changes until ctx ends or the channel closes.
func (n *Notifier) Run(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			n.Handle(c)
		}
	}
}
