package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	maxFrameBytes  = 10 << 20
	startupPoll    = 100 * time.Millisecond
	startupTimeout = 5 * time.Second
)

var (
	// ErrFrameTooLarge is returned when no JPEG end marker appears within
	// maxFrameBytes.
	ErrFrameTooLarge = errors.New("jpeg frame too large")
	// ErrNoFrames is returned when ffmpeg exits before producing any frame.
	ErrNoFrames = errors.New("no frames received from ffmpeg")
)

// FrameCallback is called for each extracted JPEG frame with its index.
type FrameCallback func(index int, frameData []byte) error

// FFmpegExtractor decodes a video source into JPEG frames with ffmpeg.
// Frames are numbered consecutively starting at FirstIndex.
type FFmpegExtractor struct {
	FirstIndex int

	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd
	next   int
}

// NextIndex returns the index the next extracted frame would receive.
func (f *FFmpegExtractor) NextIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return max(f.next, f.FirstIndex)
}

func (f *FFmpegExtractor) claimIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := max(f.next, f.FirstIndex)
	f.next = idx + 1
	return idx
}

// StartExtraction runs ffmpeg on streamURL and calls callback for every
// frame. fps <= 0 keeps the source rate and width <= 0 keeps the source size.
// It blocks until the source ends, the context is cancelled or Stop is called.
func (f *FFmpegExtractor) StartExtraction(ctx context.Context, streamURL string, fps int, width int, callback FrameCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(streamURL, fps, width)...)
	f.mu.Lock()
	f.cancel, f.cmd = cancel, cmd
	f.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			slog.Warn("ffmpeg", "output", sc.Text())
		}
	}()

	err = readJPEGFrames(ctx, stdout, func(data []byte) error {
		return callback(f.claimIndex(), data)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}
	return cmd.Wait()
}

// Stop terminates the ffmpeg process.
func (f *FFmpegExtractor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// ffmpegArgs builds the command line that writes concatenated JPEGs to stdout.
func ffmpegArgs(streamURL string, fps, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(streamURL, "rtsp://"), strings.HasPrefix(streamURL, "rtsps://"):
		// Socket timeouts are in microseconds.
		args = append(args, "-rtsp_transport", "tcp", "-stimeout", "5000000", "-timeout", "5000000")
	case strings.HasPrefix(streamURL, "http://"), strings.HasPrefix(streamURL, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	args = append(args, "-i", streamURL)
	if vf := videoFilter(fps, width); vf != "" {
		args = append(args, "-vf", vf)
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1")
}

func videoFilter(fps, width int) string {
	var filters []string
	if fps > 0 {
		filters = append(filters, fmt.Sprintf("fps=%d", fps))
	}
	if width > 0 {
		filters = append(filters, fmt.Sprintf("scale=%d:-1", width))
	}
	return strings.Join(filters, ",")
}

// readJPEGFrames splits a stream of concatenated JPEG images. An empty stream
// is polled until startupTimeout while ffmpeg connects; a stream that ends
// after at least one frame, even mid-frame, is a normal end. Callback errors
// are logged and skip only that frame.
func readJPEGFrames(ctx context.Context, r io.Reader, callback func(frameData []byte) error) error {
	jr := &jpegReader{r: bufio.NewReaderSize(r, 512<<10)}
	deadline := time.Now().Add(startupTimeout)
	frames := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := jr.next()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF) && frames > 0:
			return nil
		case errors.Is(err, io.EOF) && !jr.started && time.Now().Before(deadline):
			time.Sleep(startupPoll)
			continue
		case errors.Is(err, io.EOF):
			return ErrNoFrames
		default:
			return err
		}

		frames++
		if err := callback(data); err != nil {
			slog.Warn("frame callback error", "error", err)
		}
	}
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// jpegReader returns one SOI..EOI span per call.
type jpegReader struct {
	r       *bufio.Reader
	started bool
}

func (j *jpegReader) next() ([]byte, error) {
	if err := j.skipToSOI(); err != nil {
		return nil, err
	}
	j.started = true

	frame := bytes.NewBuffer(append([]byte(nil), jpegSOI...))
	for {
		chunk, err := j.r.ReadBytes(0xFF)
		frame.Write(chunk)
		if err != nil {
			return nil, err
		}
		if frame.Len() > maxFrameBytes {
			return nil, fmt.Errorf("%w: over %d bytes", ErrFrameTooLarge, maxFrameBytes)
		}
		b, err := j.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == 0xFF {
			// Fill bytes; the second 0xFF may start the marker.
			_ = j.r.UnreadByte()
			continue
		}
		frame.WriteByte(b)
		if b == jpegEOI[1] {
			return frame.Bytes(), nil
		}
	}
}

func (j *jpegReader) skipToSOI() error {
	for {
		if _, err := j.r.ReadBytes(0xFF); err != nil {
			return err
		}
		b, err := j.r.ReadByte()
		if err != nil {
			return err
		}
		if b == jpegSOI[1] {
			return nil
		}
		if b == 0xFF {
			_ = j.r.UnreadByte()
		}
	}
}
