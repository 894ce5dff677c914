package vision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pitchtrack/internal/models"
)

type memFrames map[string][]byte

func (m memFrames) GetFrame(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

type scriptedDetector struct {
	frames [][]Detection
	calls  int
}

func (d *scriptedDetector) Detect(image.Image) ([]Detection, error) {
	out := d.frames[d.calls%len(d.frames)]
	d.calls++
	return out, nil
}

type capturePublisher struct {
	batches []models.TrackBatch
}

func (p *capturePublisher) PublishTracks(_ context.Context, b models.TrackBatch) error {
	p.batches = append(p.batches, b)
	return nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32)), nil))
	return buf.Bytes()
}

func TestPipeline_ProcessFrame(t *testing.T) {
	frames := memFrames{"f.jpg": testJPEG(t)}
	detector := &scriptedDetector{frames: [][]Detection{
		{det(0, 0, 10, 10)},
		{det(1, 0, 11, 10)},
		{},
	}}
	pub := &capturePublisher{}

	p, err := NewPipeline(detector, frames, pub, DefaultTrackerConfig())
	require.NoError(t, err)

	match := uuid.New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: match, FrameIndex: i, FrameRef: "f.jpg"}))
	}

	require.Len(t, pub.batches, 2, "frame without records is not published")
	for i, b := range pub.batches {
		assert.Equal(t, match, b.MatchID)
		assert.Equal(t, i, b.FrameIndex)
		require.Len(t, b.Records, 1)
		assert.Equal(t, int64(1), b.Records[0].TrackID)
	}
	assert.Equal(t, 1, p.ActiveMatches())

	p.EndMatch(match)
	assert.Equal(t, 0, p.ActiveMatches())

	require.NoError(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: match, FrameIndex: 3, FrameRef: "f.jpg"}))
	require.Len(t, pub.batches, 3)
	assert.Equal(t, int64(1), pub.batches[2].Records[0].TrackID, "fresh tracker restarts ids")
}

func TestPipeline_SeparateMatchesHaveSeparateTrackers(t *testing.T) {
	frames := memFrames{"f.jpg": testJPEG(t)}
	detector := &scriptedDetector{frames: [][]Detection{{det(0, 0, 10, 10), det(20, 20, 30, 30)}}}
	pub := &capturePublisher{}

	p, err := NewPipeline(detector, frames, pub, DefaultTrackerConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: uuid.New(), FrameRef: "f.jpg"}))
	require.NoError(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: uuid.New(), FrameRef: "f.jpg"}))

	require.Len(t, pub.batches, 2)
	assert.Equal(t, trackIDs(pub.batches[0].Records), trackIDs(pub.batches[1].Records))
	assert.Equal(t, 2, p.ActiveMatches())
}

func TestPipeline_Errors(t *testing.T) {
	_, err := NewPipeline(&scriptedDetector{}, memFrames{}, &capturePublisher{}, TrackerConfig{IoUThreshold: 2, MinHits: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewPipeline(&scriptedDetector{frames: [][]Detection{{}}}, memFrames{"bad": []byte("not a jpeg")}, &capturePublisher{}, DefaultTrackerConfig())
	require.NoError(t, err)

	err = p.ProcessFrame(context.Background(), models.FrameTask{MatchID: uuid.New(), FrameRef: "missing"})
	assert.ErrorContains(t, err, "load frame")

	err = p.ProcessFrame(context.Background(), models.FrameTask{MatchID: uuid.New(), FrameRef: "bad"})
	assert.ErrorContains(t, err, "decode jpeg")
}

func TestPipeline_UnreadableFrameAgesTracks(t *testing.T) {
	frames := memFrames{"f.jpg": testJPEG(t), "bad": []byte("not a jpeg")}
	detector := &scriptedDetector{frames: [][]Detection{{det(0, 0, 10, 10)}}}
	pub := &capturePublisher{}

	p, err := NewPipeline(detector, frames, pub, TrackerConfig{IoUThreshold: 0.3, MaxAge: 1, MinHits: 1})
	require.NoError(t, err)

	match := uuid.New()
	ctx := context.Background()
	require.NoError(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: match, FrameIndex: 0, FrameRef: "f.jpg"}))

	require.Error(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: match, FrameIndex: 1, FrameRef: "missing"}))
	tracks := p.tracker(match).Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 1, tracks[0].Age)

	require.Error(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: match, FrameIndex: 2, FrameRef: "bad"}))
	assert.Empty(t, p.tracker(match).Tracks(), "evicted after max_age+1 unreadable frames")

	require.NoError(t, p.ProcessFrame(ctx, models.FrameTask{MatchID: match, FrameIndex: 3, FrameRef: "f.jpg"}))
	require.Len(t, pub.batches, 2)
	assert.Equal(t, int64(2), pub.batches[1].Records[0].TrackID)
}

func TestPipeline_HandleEndOfMatch(t *testing.T) {
	frames := memFrames{"f.jpg": testJPEG(t)}
	detector := &scriptedDetector{frames: [][]Detection{{det(0, 0, 10, 10)}}}
	pub := &capturePublisher{}

	p, err := NewPipeline(detector, frames, pub, DefaultTrackerConfig())
	require.NoError(t, err)

	match := uuid.New()
	ctx := context.Background()
	require.NoError(t, p.Handle(ctx, models.FrameTask{MatchID: match, FrameIndex: 0, FrameRef: "f.jpg"}))
	assert.Equal(t, 1, p.ActiveMatches())

	require.NoError(t, p.Handle(ctx, models.FrameTask{MatchID: match, FrameIndex: 1, EndOfMatch: true}))
	assert.Equal(t, 0, p.ActiveMatches())
	assert.Equal(t, 1, detector.calls, "end marker loads no frame")
	assert.Len(t, pub.batches, 1)
}
