// Package x11 reads window geometry from an X11 server so a native window can
// take part in a registry.
package x11

import (
	"fmt"

	"github.com/BurntSushi/xgbutil"
)

// Connection is a read-only view of one X display: window geometry, the
// focused window and the managed client list. It never moves or grabs
// anything.
type Connection struct {
	xu      *xgbutil.XUtil
	display string
}

// NewConnection opens display, or $DISPLAY when display is empty.
func NewConnection(display string) (*Connection, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		name := display
		if name == "" {
			name = "$DISPLAY"
		}
		return nil, fmt.Errorf("failed to connect to X display %s: %w", name, err)
	}
	return &Connection{xu: xu, display: display}, nil
}

// Display returns the display name given to NewConnection.
func (c *Connection) Display() string {
	return c.display
}

func (c *Connection) Close() {
	c.xu.Conn().Close()
}
