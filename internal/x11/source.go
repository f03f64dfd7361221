package x11

import (
	"log/slog"
	"sync"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/windowsync/internal/geometry"
)

// WindowSource reports the geometry of one X11 window. Errors (window gone,
// server unreachable) yield the zero shape; the first failure is logged.
type WindowSource struct {
	conn   *Connection
	window xproto.Window
	logger *slog.Logger

	once sync.Once
}

var _ geometry.Source = (*WindowSource)(nil)

// NewWindowSource tracks windowID on conn. A zero windowID selects the
// window that is active at construction time.
func NewWindowSource(conn *Connection, windowID uint32, logger *slog.Logger) (*WindowSource, error) {
	wid := xproto.Window(windowID)
	if wid == 0 {
		active, err := conn.GetActiveWindow()
		if err != nil {
			return nil, err
		}
		wid = active
	}
	return &WindowSource{conn: conn, window: wid, logger: logger}, nil
}

// Window returns the tracked window id.
func (s *WindowSource) Window() uint32 {
	return uint32(s.window)
}

func (s *WindowSource) CurrentShape() geometry.Shape {
	shape, err := s.conn.WindowShape(s.window)
	if err != nil {
		s.once.Do(func() {
			if s.logger != nil {
				s.logger.Warn("window geometry unavailable", "window_id", uint32(s.window), "error", err)
			}
		})
		return geometry.Shape{}
	}
	return shape
}
