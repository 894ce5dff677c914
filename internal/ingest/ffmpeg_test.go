package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJPEGFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x01}) // noise before the first frame
	stream.Write([]byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9})
	stream.Write([]byte{0xFF, 0xD8, 0xBB, 0xCC, 0xFF, 0xD9})

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(data []byte) error {
		frames = append(frames, data)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 0xBB, 0xCC, 0xFF, 0xD9}, frames[1])
}

func TestReadJPEGFrames_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := readJPEGFrames(ctx, bytes.NewReader(nil), func([]byte) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVideoFilter(t *testing.T) {
	assert.Equal(t, "fps=5,scale=1280:-1", videoFilter(5, 1280))
	assert.Equal(t, "scale=640:-1", videoFilter(0, 640))
	assert.Equal(t, "", videoFilter(0, 0))
}

func TestFFmpegExtractor_NextIndexStartsAtFirst(t *testing.T) {
	ex := &FFmpegExtractor{FirstIndex: 7}
	assert.Equal(t, 7, ex.NextIndex())
}

func TestReadJPEGFrames_FillBytesAndTruncatedTail(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xFF, 0xD9})
	stream.Write([]byte{0xFF, 0xD8, 0x02}) // cut off mid-frame

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(data []byte) error {
		frames = append(frames, data)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0xFF, 0xFF, 0xD9}, frames[0])
}

func TestReadJPEGFrames_CallbackErrorSkipsFrame(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		stream.Write([]byte{0xFF, 0xD8, byte(i), 0xFF, 0xD9})
	}

	calls := 0
	err := readJPEGFrames(context.Background(), &stream, func([]byte) error {
		calls++
		if calls == 2 {
			return errors.New("upload failed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFFmpegArgs(t *testing.T) {
	rtsp := ffmpegArgs("rtsp://cam/1", 0, 0)
	assert.Contains(t, rtsp, "-rtsp_transport")
	assert.NotContains(t, rtsp, "-vf")

	web := ffmpegArgs("https://cdn/v.m3u8", 5, 1280)
	assert.Contains(t, web, "-reconnect")
	assert.Contains(t, web, "fps=5,scale=1280:-1")
	assert.Equal(t, "pipe:1", web[len(web)-1])

	file := ffmpegArgs("/data/match.mp4", 0, 0)
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "warning", "-i", "/data/match.mp4",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1"}, file)
}
