package overlay

import "github.com/infilloai/infillo-sub001/autofill/suggest"

// Edge selects which side of the field the widget anchors to.
type Edge string

const (
	EdgeLeading  Edge = "leading"
	EdgeTrailing Edge = "trailing"
)

// Size is a width/height pair in CSS pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Point is a viewport-relative position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Position anchors a widget to the field's bounding rectangle: offset toward
// the configured edge, vertically centered, clamped against the viewport so
// the widget never renders off-screen.
func Position(field suggest.Rect, viewport Size, edge Edge, offset float64, widget Size) Point {
	var x float64
	switch edge {
	case EdgeLeading:
		x = field.X - offset - widget.W
	default: // trailing
		x = field.X + field.W + offset
	}
	y := field.Y + field.H/2 - widget.H/2

	return Point{
		X: clamp(x, 0, viewport.W-widget.W),
		Y: clamp(y, 0, viewport.H-widget.H),
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
