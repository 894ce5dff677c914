package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/vision"
)

type boxDetector struct {
	frames [][]vision.Detection
	n      int
}

func (d *boxDetector) Detect(image.Image) ([]vision.Detection, error) {
	out := d.frames[d.n%len(d.frames)]
	d.n++
	return out, nil
}

func box(x1, y1, x2, y2 float64) vision.Detection {
	return vision.Detection{BBox: vision.BBox{x1, y1, x2, y2}, Score: 0.9}
}

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestTrackSession(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48)), nil))

	det := &boxDetector{frames: [][]vision.Detection{
		{box(0, 0, 10, 10)},
		{box(1, 0, 11, 10), box(30, 30, 40, 40)},
	}}
	s, err := newTrackSession(det, vision.DefaultTrackerConfig(), 25)
	require.NoError(t, err)

	require.NoError(t, s.frame(0, buf.Bytes()))
	require.NoError(t, s.frame(1, buf.Bytes()))
	assert.Error(t, s.frame(2, []byte("garbage")))

	assert.Equal(t, models.VideoInfo{FPS: 25, FrameWidth: 64, FrameHeight: 48, FrameCount: 2}, s.file.Video)
	require.Len(t, s.file.Tracks, 3)
	assert.Equal(t, int64(1), s.file.Tracks[1].TrackID)
	assert.Equal(t, int64(2), s.file.Tracks[2].TrackID)

	out := filepath.Join(t.TempDir(), "nested", "tracks.json")
	require.NoError(t, s.write(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var tf models.TrackFile
	require.NoError(t, json.Unmarshal(data, &tf))
	assert.Len(t, tf.Tracks, 3)
}

func TestOfflinePipeline(t *testing.T) {
	dir := t.TempDir()

	points := writeTemp(t, dir, "points.csv",
		"image_x,image_y,pitch_x,pitch_y\n0,0,0,0\n100,0,105,0\n100,100,105,68\n0,100,0,68\n")
	hPath := filepath.Join(dir, "H.yaml")
	require.NoError(t, runHomography([]string{"-points", points, "-out", hPath}))

	tracks := models.TrackFile{Tracks: []models.TrackRecord{
		{TrackID: 1, FrameIndex: 0, BBox: [4]float64{0, 0, 20, 20}, Score: 0.9},
		{TrackID: 1, FrameIndex: 1, BBox: [4]float64{80, 0, 100, 20}, Score: 0.9},
	}}
	data, err := json.Marshal(tracks)
	require.NoError(t, err)
	tracksPath := writeTemp(t, dir, "tracks.json", string(data))

	xyPath := filepath.Join(dir, "xy.csv")
	require.NoError(t, runWarp([]string{"-tracks", tracksPath, "-H", hPath, "-out", xyPath}))
	xy, err := os.ReadFile(xyPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(xy), "track_id,frame_index,"))

	table := writeTemp(t, dir, "xt.csv", "x_bin,y_bin,value\n0,0,0.1\n1,0,0.5\n")
	scoresPath := filepath.Join(dir, "scores.csv")
	require.NoError(t, runXT([]string{"-xy", xyPath, "-table", table, "-out", scoresPath}))

	scores, err := os.ReadFile(scoresPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(scores)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "track_id,xt", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,0.4"), lines[1])
}

func TestRequiredFlags(t *testing.T) {
	assert.ErrorContains(t, runHomography([]string{"-out", "x.yaml"}), "-points is required")
	assert.ErrorContains(t, runWarp(nil), "-tracks is required")
	assert.ErrorContains(t, runXT([]string{"-xy", "a"}), "-table is required")
	assert.ErrorIs(t, runXT([]string{"-h"}), flag.ErrHelp)
}

func TestOutputFPSPrefersResampleRate(t *testing.T) {
	assert.Equal(t, 10.0, outputFPS(context.Background(), "does-not-matter.mp4", 10))
}
