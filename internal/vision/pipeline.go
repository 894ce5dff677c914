package vision

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/pitchtrack/internal/config"
	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/observability"
)

// FrameSource loads encoded frames by object key.
type FrameSource interface {
	GetFrame(ctx context.Context, key string) ([]byte, error)
}

// RecordPublisher delivers the records a tracker emitted for one frame.
type RecordPublisher interface {
	PublishTracks(ctx context.Context, batch models.TrackBatch) error
}

// Pipeline orchestrates per-frame processing: load → detect → track → publish.
// Each match owns one tracker. ProcessFrame may run concurrently for different
// matches but frames of one match must arrive in order from a single goroutine.
type Pipeline struct {
	detector  Detector
	frames    FrameSource
	publisher RecordPublisher
	trackCfg  TrackerConfig

	mu       sync.Mutex
	trackers map[uuid.UUID]*Tracker
}

// TrackerConfigFrom converts the file-level tracking settings.
func TrackerConfigFrom(c config.TrackingConfig) TrackerConfig {
	return TrackerConfig{
		IoUThreshold: c.IoUThreshold,
		MaxAge:       c.MaxAge,
		MinHits:      c.MinHits,
	}
}

// LoadDetector builds the YOLO detector described by cfg.
func LoadDetector(cfg config.VisionConfig) (*YOLODetector, error) {
	target := -1
	if cfg.TargetClass != "" {
		id, ok := ClassID(cfg.TargetClass)
		if !ok {
			return nil, fmt.Errorf("unknown target class %q", cfg.TargetClass)
		}
		target = id
	}

	path := filepath.Join(cfg.ModelsDir, cfg.Model)
	slog.Info("loading detection model", "path", path, "target_class", cfg.TargetClass)
	det, err := NewYOLODetector(path, float32(cfg.Confidence), target, nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}
	return det, nil
}

// NewPipeline validates the tracker settings once; every tracker the
// pipeline creates later uses them.
func NewPipeline(detector Detector, frames FrameSource, publisher RecordPublisher, trackCfg TrackerConfig) (*Pipeline, error) {
	if err := trackCfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		detector:  detector,
		frames:    frames,
		publisher: publisher,
		trackCfg:  trackCfg,
		trackers:  make(map[uuid.UUID]*Tracker),
	}, nil
}

// Handle dispatches a task from the FRAMES stream: end-of-match markers
// release the match tracker, everything else is a frame.
func (p *Pipeline) Handle(ctx context.Context, task models.FrameTask) error {
	if task.EndOfMatch {
		p.EndMatch(task.MatchID)
		return nil
	}
	return p.ProcessFrame(ctx, task)
}

// ProcessFrame handles one frame task and publishes the emitted records.
// A frame that cannot be loaded, decoded or detected is tracked as empty so
// every track still ages, and the error is returned.
func (p *Pipeline) ProcessFrame(ctx context.Context, task models.FrameTask) error {
	detections, err := p.detect(ctx, task)
	if err != nil {
		tracker := p.tracker(task.MatchID)
		tracker.Update(nil, task.FrameIndex)
		observability.TracksEvicted.Add(float64(tracker.LastStats().Evicted))
		observability.FramesProcessed.WithLabelValues("skipped").Inc()
		return err
	}

	// Frames without detections still age every track.
	tracker := p.tracker(task.MatchID)
	start := time.Now()
	records := tracker.Update(detections, task.FrameIndex)
	observability.StageDuration.WithLabelValues("track").Observe(time.Since(start).Seconds())

	stats := tracker.LastStats()
	observability.TracksSpawned.Add(float64(stats.Spawned))
	observability.TracksEvicted.Add(float64(stats.Evicted))
	observability.RecordsEmitted.Add(float64(stats.Emitted))
	observability.LiveTracks.WithLabelValues(task.MatchID.String()).Set(float64(stats.Live))
	observability.FramesProcessed.WithLabelValues("track").Inc()

	slog.Debug("frame tracked",
		"match_id", task.MatchID,
		"frame_index", task.FrameIndex,
		"detections", len(detections),
		"matched", stats.Matched,
		"spawned", stats.Spawned,
		"evicted", stats.Evicted,
	)

	if len(records) == 0 {
		return nil
	}

	batch := models.TrackBatch{
		MatchID:    task.MatchID,
		FrameIndex: task.FrameIndex,
		Records:    records,
	}
	if err := p.publisher.PublishTracks(ctx, batch); err != nil {
		return fmt.Errorf("publish tracks: %w", err)
	}
	return nil
}

func (p *Pipeline) detect(ctx context.Context, task models.FrameTask) ([]Detection, error) {
	frameData, err := p.frames.GetFrame(ctx, task.FrameRef)
	if err != nil {
		return nil, fmt.Errorf("load frame: %w", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(frameData))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	start := time.Now()
	detections, err := p.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	observability.DetectionsTotal.Add(float64(len(detections)))
	return detections, nil
}

// EndMatch drops the tracker of a finished match. A later frame for the same
// match starts a fresh tracker with IDs from 1.
func (p *Pipeline) EndMatch(matchID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.trackers[matchID]; ok {
		delete(p.trackers, matchID)
		observability.LiveTracks.DeleteLabelValues(matchID.String())
		slog.Info("released tracker", "match_id", matchID)
	}
}

// ActiveMatches returns the number of matches with a live tracker.
func (p *Pipeline) ActiveMatches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trackers)
}

func (p *Pipeline) tracker(matchID uuid.UUID) *Tracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.trackers[matchID]; ok {
		return t
	}
	// trackCfg was validated in NewPipeline.
	t, _ := NewTracker(p.trackCfg)
	p.trackers[matchID] = t
	return t
}
