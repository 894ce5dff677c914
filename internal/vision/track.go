package vision

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by NewTracker for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid tracker config")

// TrackState is the lifecycle state of a live track. Removed tracks leave the
// table entirely, so they have no state value.
type TrackState string

const (
	TrackPending   TrackState = "pending"   // hits < min_hits, never emitted
	TrackConfirmed TrackState = "confirmed" // hits >= min_hits
)

// Track is a persistent identity maintained across frames.
type Track struct {
	ID        int64
	BBox      BBox
	Score     float64
	Hits      int // frames matched, including the spawning frame
	Age       int // consecutive frames since the last match
	LastFrame int // index of the last matched frame
	state     TrackState
}

// State reports whether the track has been confirmed yet.
func (t Track) State() TrackState { return t.state }

// TrackerConfig holds the association and lifecycle settings of one tracker.
type TrackerConfig struct {
	IoUThreshold float64 // minimum IoU for a solver pair to count as a match
	MaxAge       int     // frames a track may go unmatched before deletion
	MinHits      int     // matches required before a track is emitted
}

// DefaultTrackerConfig returns the settings used when none are configured.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		IoUThreshold: 0.3,
		MaxAge:       30,
		MinHits:      1,
	}
}

// Validate checks that the config can drive a tracker.
func (c TrackerConfig) Validate() error {
	if math.IsNaN(c.IoUThreshold) || c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("%w: iou_threshold %v outside [0,1]", ErrInvalidConfig, c.IoUThreshold)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("%w: max_age %d is negative", ErrInvalidConfig, c.MaxAge)
	}
	if c.MinHits < 1 {
		return fmt.Errorf("%w: min_hits %d must be at least 1", ErrInvalidConfig, c.MinHits)
	}
	return nil
}
