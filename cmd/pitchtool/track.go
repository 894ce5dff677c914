package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/your-org/pitchtrack/internal/ingest"
	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/vision"
)

// trackSession accumulates the records of one offline run.
type trackSession struct {
	detector vision.Detector
	tracker  *vision.Tracker
	file     models.TrackFile
}

func newTrackSession(detector vision.Detector, cfg vision.TrackerConfig, fps float64) (*trackSession, error) {
	tracker, err := vision.NewTracker(cfg)
	if err != nil {
		return nil, err
	}
	return &trackSession{
		detector: detector,
		tracker:  tracker,
		file:     models.TrackFile{Video: models.VideoInfo{FPS: fps}, Tracks: []models.TrackRecord{}},
	}, nil
}

// frame detects and tracks one JPEG frame.
func (s *trackSession) frame(index int, data []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode frame %d: %w", index, err)
	}
	if s.file.Video.FrameCount == 0 {
		b := img.Bounds()
		s.file.Video.FrameWidth, s.file.Video.FrameHeight = b.Dx(), b.Dy()
	}
	s.file.Video.FrameCount++

	dets, err := s.detector.Detect(img)
	if err != nil {
		return fmt.Errorf("detect frame %d: %w", index, err)
	}
	s.file.Tracks = append(s.file.Tracks, s.tracker.Update(dets, index)...)

	if (index+1)%250 == 0 {
		slog.Info("tracking", "frame", index, "live_tracks", s.tracker.Len(), "records", len(s.file.Tracks))
	}
	return nil
}

func (s *trackSession) write(path string) error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracks: %w", err)
	}
	return writeFile(path, data)
}

func runTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	input := fs.String("input", "", "path or URL of the input video")
	out := fs.String("out", "", "output JSON for track data")
	model := fs.String("model", "models/yolov8n.onnx", "YOLOv8 ONNX model")
	onnxLib := fs.String("onnx-lib", "", "ONNX Runtime shared library (platform default when empty)")
	confidence := fs.Float64("confidence", 0.3, "detection confidence threshold")
	class := fs.String("class", "person", "detected class to track (empty keeps every class)")
	fps := fs.Int("fps", 0, "resample to this frame rate (0 keeps the source rate)")
	width := fs.Int("width", 0, "resize frames to this width (0 keeps the source size)")
	iou := fs.Float64("iou-threshold", 0.3, "tracker IoU threshold")
	maxAge := fs.Int("max-age", 30, "frames before a lost track is dropped")
	minHits := fs.Int("min-hits", 1, "frames required before a track is emitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "input", "out"); err != nil {
		return err
	}

	cfg := vision.TrackerConfig{IoUThreshold: *iou, MaxAge: *maxAge, MinHits: *minHits}
	if err := cfg.Validate(); err != nil {
		return err
	}

	target := -1
	if *class != "" {
		id, ok := vision.ClassID(*class)
		if !ok {
			return fmt.Errorf("unknown class %q", *class)
		}
		target = id
	}

	if err := vision.InitRuntime(*onnxLib); err != nil {
		return err
	}
	defer vision.DestroyRuntime()

	detector, err := vision.NewYOLODetector(*model, float32(*confidence), target, nil)
	if err != nil {
		return fmt.Errorf("load detector: %w", err)
	}
	defer detector.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := newTrackSession(detector, cfg, outputFPS(ctx, *input, *fps))
	if err != nil {
		return err
	}

	slog.Info("tracking video", "input", *input, "model", *model)
	ex := &ingest.FFmpegExtractor{}
	if err := ex.StartExtraction(ctx, *input, *fps, *width, session.frame); err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}

	if err := session.write(*out); err != nil {
		return err
	}
	slog.Info("tracks saved", "out", *out, "frames", session.file.Video.FrameCount, "records", len(session.file.Tracks))
	return nil
}

// outputFPS is the rate of the extracted frames: the resample rate when one
// is requested, otherwise the source rate reported by ffprobe.
func outputFPS(ctx context.Context, input string, resample int) float64 {
	if resample > 0 {
		return float64(resample)
	}
	fps, err := ingest.ProbeFPS(ctx, input)
	if err != nil {
		slog.Warn("source frame rate unknown", "input", input, "error", err)
		return 0
	}
	return fps
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
