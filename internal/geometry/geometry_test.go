package geometry

import "testing"

func TestShapeEqual(t *testing.T) {
	a := Shape{X: 10, Y: 20, W: 800, H: 600}
	if !a.Equal(Shape{X: 10, Y: 20, W: 800, H: 600}) {
		t.Fatal("expected identical shapes to be equal")
	}
	for _, b := range []Shape{
		{X: 11, Y: 20, W: 800, H: 600},
		{X: 10, Y: 21, W: 800, H: 600},
		{X: 10, Y: 20, W: 801, H: 600},
		{X: 10, Y: 20, W: 800, H: 601},
	} {
		if a.Equal(b) {
			t.Errorf("%v.Equal(%v) = true, want false", a, b)
		}
	}
}

func TestSources(t *testing.T) {
	want := Shape{X: 1, Y: 2, W: 3, H: 4}
	if got := Static(want).CurrentShape(); got != want {
		t.Fatalf("Static.CurrentShape() = %v, want %v", got, want)
	}
	if got := SourceFunc(func() Shape { return want }).CurrentShape(); got != want {
		t.Fatalf("SourceFunc.CurrentShape() = %v, want %v", got, want)
	}
	var nilFunc SourceFunc
	if got := nilFunc.CurrentShape(); !got.IsZero() {
		t.Fatalf("nil SourceFunc.CurrentShape() = %v, want zero", got)
	}
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		input   string
		want    Shape
		wantErr bool
	}{
		{"0,0,800,600", Shape{W: 800, H: 600}, false},
		{" -20, 40 ,1024,768 ", Shape{X: -20, Y: 40, W: 1024, H: 768}, false},
		{"1,2,3", Shape{}, true},
		{"a,b,c,d", Shape{}, true},
		{"0,0,-1,10", Shape{}, true},
	}
	for _, tt := range tests {
		got, err := ParseShape(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseShape(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseShape(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseShape(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
