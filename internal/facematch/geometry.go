package facematch

import (
	"image"
	"math"
)

// BBox is a face bounding box [x1, y1, x2, y2] in image pixel coordinates.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// NewBBox builds a BBox from the [x1, y1, x2, y2] slice format used on the wire.
// Returns nil if the slice does not have exactly four values.
func NewBBox(v []float64) *BBox {
	if len(v) != 4 {
		return nil
	}
	return &BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
}

// Clamp truncates the box to integers and clips it to bounds.
// The top-left corner is clipped to the last valid pixel, the bottom-right
// corner to the exclusive edge, so x2/y2 may equal the image width/height.
// The result is not canonicalised: a box lying outside the image comes back
// with zero or negative width/height.
func (b BBox) Clamp(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	x1 := clampInt(truncate(b.X1), 0, w-1)
	y1 := clampInt(truncate(b.Y1), 0, h-1)
	x2 := clampInt(truncate(b.X2), 0, w)
	y2 := clampInt(truncate(b.Y2), 0, h)
	return image.Rectangle{
		Min: bounds.Min.Add(image.Pt(x1, y1)),
		Max: bounds.Min.Add(image.Pt(x2, y2)),
	}
}

// truncate converts toward zero like a C int cast, saturating at the int32 range.
func truncate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
