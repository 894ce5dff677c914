package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b BBox
		want float64
	}{
		{"identical", BBox{0, 0, 10, 10}, BBox{0, 0, 10, 10}, 1},
		{"disjoint", BBox{0, 0, 10, 10}, BBox{100, 100, 110, 110}, 0},
		{"touching edges", BBox{0, 0, 10, 10}, BBox{10, 0, 20, 10}, 0},
		{"half overlap", BBox{0, 0, 10, 10}, BBox{5, 0, 15, 10}, 50.0 / 150.0},
		{"contained", BBox{0, 0, 10, 10}, BBox{0, 0, 5, 10}, 0.5},
		{"zero area", BBox{5, 5, 5, 5}, BBox{0, 0, 10, 10}, 0},
		{"both zero area", BBox{5, 5, 5, 5}, BBox{5, 5, 5, 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-12)
			assert.InDelta(t, tt.want, IoU(tt.b, tt.a), 1e-12, "IoU must be symmetric")
		})
	}
}

func TestBBoxCentroid(t *testing.T) {
	cx, cy := BBox{10, 20, 30, 60}.Centroid()
	assert.Equal(t, 20.0, cx)
	assert.Equal(t, 40.0, cy)
}

func TestBuildCostMatrix(t *testing.T) {
	t.Parallel()

	tracks := []*Track{
		{ID: 1, BBox: BBox{0, 0, 10, 10}},
		{ID: 2, BBox: BBox{100, 100, 110, 110}},
	}
	dets := []Detection{{BBox: BBox{0, 0, 10, 10}}}

	cost := BuildCostMatrix(tracks, dets)
	assert.Len(t, cost, 2)
	assert.Equal(t, []float64{0}, cost[0])
	assert.Equal(t, []float64{1}, cost[1])

	t.Run("no detections", func(t *testing.T) {
		cost := BuildCostMatrix(tracks, nil)
		assert.Len(t, cost, 2)
		assert.Empty(t, cost[0])
	})

	t.Run("no tracks", func(t *testing.T) {
		assert.Empty(t, BuildCostMatrix(nil, dets))
	})
}
