package vision

import "math"

// iouEpsilon floors the union area so zero-area boxes yield 0 instead of NaN.
const iouEpsilon = 1e-6

// BBox is an axis-aligned box in image pixels: x1, y1, x2, y2.
type BBox [4]float64

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

// Area returns the box area, or 0 for inverted boxes.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Centroid returns the midpoint of the box.
func (b BBox) Centroid() (float64, float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
func IoU(a, b BBox) float64 {
	iw := math.Min(a[2], b[2]) - math.Max(a[0], b[0])
	ih := math.Min(a[3], b[3]) - math.Max(a[1], b[1])
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := math.Max(a.Area()+b.Area()-inter, iouEpsilon)
	return math.Min(inter/union, 1)
}
