package geometry

import "fmt"

// Shape describes a window's viewport in screen coordinates.
type Shape struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Equal reports whether two shapes match field by field.
func (s Shape) Equal(other Shape) bool {
	return s.X == other.X && s.Y == other.Y && s.W == other.W && s.H == other.H
}

// IsZero reports whether the shape is the (0,0,0,0) placeholder returned
// before the host has settled its layout.
func (s Shape) IsZero() bool {
	return s == Shape{}
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", s.W, s.H, s.X, s.Y)
}

// Source reads the current geometry of the local window. Implementations must
// not fail: when geometry is unavailable they return the zero Shape.
type Source interface {
	CurrentShape() Shape
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() Shape

func (f SourceFunc) CurrentShape() Shape {
	if f == nil {
		return Shape{}
	}
	return f()
}

// Static is a Source that always reports the same shape.
type Static Shape

func (s Static) CurrentShape() Shape {
	return Shape(s)
}
