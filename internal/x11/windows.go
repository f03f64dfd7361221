package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xrect"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/windowsync/internal/geometry"
)

// WindowShape returns the screen position of the window's outer frame and
// the size of its client area, matching a browser's screenLeft/screenTop and
// innerWidth/innerHeight.
func (c *Connection) WindowShape(windowID xproto.Window) (geometry.Shape, error) {
	win := xwindow.New(c.xu, windowID)

	outer, err := win.DecorGeometry()
	if err != nil {
		return geometry.Shape{}, fmt.Errorf("failed to get frame geometry of window %d: %w", windowID, err)
	}
	inner, err := win.Geometry()
	if err != nil {
		return geometry.Shape{}, fmt.Errorf("failed to get client geometry of window %d: %w", windowID, err)
	}
	return shapeFromRects(outer, inner), nil
}

func shapeFromRects(outer, inner xrect.Rect) geometry.Shape {
	return geometry.Shape{
		X: outer.X(),
		Y: outer.Y(),
		W: inner.Width(),
		H: inner.Height(),
	}
}

// GetActiveWindow returns the window that currently has focus.
func (c *Connection) GetActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.xu)
}

// ClientWindows returns the ids of all managed top-level windows.
func (c *Connection) ClientWindows() ([]uint32, error) {
	clients, err := ewmh.ClientListGet(c.xu)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}
	ids := make([]uint32, 0, len(clients))
	for _, wid := range clients {
		ids = append(ids, uint32(wid))
	}
	return ids, nil
}
