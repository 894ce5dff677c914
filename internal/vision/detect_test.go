package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yoloOutput builds a raw [84, n] output tensor from per-anchor values.
func yoloOutput(anchors []struct {
	cx, cy, w, h float32
	class        int
	score        float32
}) []float32 {
	n := len(anchors)
	out := make([]float32, (4+yoloNumClasses)*n)
	for a, an := range anchors {
		out[a] = an.cx
		out[n+a] = an.cy
		out[2*n+a] = an.w
		out[3*n+a] = an.h
		out[(4+an.class)*n+a] = an.score
	}
	return out
}

func TestDecodeYOLO(t *testing.T) {
	out := yoloOutput([]struct {
		cx, cy, w, h float32
		class        int
		score        float32
	}{
		{320, 320, 64, 128, ClassPerson, 0.9},
		{100, 100, 20, 20, ClassSportsBall, 0.8},
		{500, 500, 40, 40, ClassPerson, 0.1},
	})

	t.Run("person only", func(t *testing.T) {
		dets := decodeYOLO(out, 1280, 640, 0.3, ClassPerson)
		require.Len(t, dets, 1)
		assert.Equal(t, BBox{576, 256, 704, 384}, dets[0].BBox)
		assert.InDelta(t, 0.9, dets[0].Score, 1e-6)
		assert.Equal(t, ClassPerson, dets[0].ClassID)
	})

	t.Run("all classes", func(t *testing.T) {
		dets := decodeYOLO(out, 640, 640, 0.3, -1)
		require.Len(t, dets, 2)
		assert.Equal(t, ClassSportsBall, dets[1].ClassID)
	})
}

func TestNMS(t *testing.T) {
	dets := []Detection{
		{BBox: BBox{0, 0, 10, 10}, Score: 0.6},
		{BBox: BBox{1, 0, 11, 10}, Score: 0.9},
		{BBox: BBox{1, 0, 11, 10}, Score: 0.5, ClassID: ClassSportsBall},
		{BBox: BBox{50, 50, 60, 60}, Score: 0.7},
	}
	kept := nms(dets, 0.45)
	require.Len(t, kept, 3)
	assert.Equal(t, 0.9, kept[0].Score)
	assert.Equal(t, 0.7, kept[1].Score)
	assert.Equal(t, ClassSportsBall, kept[2].ClassID, "other classes are not suppressed")
}

func TestClassID(t *testing.T) {
	id, ok := ClassID("person")
	assert.True(t, ok)
	assert.Equal(t, ClassPerson, id)

	_, ok = ClassID("referee")
	assert.False(t, ok)
}
