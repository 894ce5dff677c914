package vision

import (
	"github.com/your-org/pitchtrack/internal/models"
)

// UpdateStats summarises what the last Update call did to the track table.
type UpdateStats struct {
	Matched int
	Spawned int
	Evicted int
	Emitted int
	Live    int
}

// Tracker links per-frame detections into persistent track identities by
// box overlap. It is not safe for concurrent use: Update must be called with
// frames in increasing index order from a single goroutine.
type Tracker struct {
	cfg    TrackerConfig
	solver Solver
	table  *trackTable
	stats  UpdateStats
}

type Option func(*Tracker)

// WithSolver replaces the default Hungarian solver.
func WithSolver(s Solver) Option {
	return func(t *Tracker) { t.solver = s }
}

// NewTracker validates cfg and returns an empty tracker.
func NewTracker(cfg TrackerConfig, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		cfg:    cfg,
		solver: HungarianSolver{},
		table:  newTrackTable(cfg.MaxAge, cfg.MinHits),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Update associates detections with live tracks and returns a record for
// every confirmed track that was matched or spawned in this frame.
func (t *Tracker) Update(detections []Detection, frameIndex int) []models.TrackRecord {
	live := t.table.live()
	res := t.match(live, detections)
	records, stats := t.table.apply(frameIndex, live, detections, res)
	t.stats = stats
	return records
}

// match runs the solver and drops pairs whose overlap is below the threshold;
// their rows and columns fall back into the unmatched sets.
func (t *Tracker) match(live []*Track, detections []Detection) frameResult {
	trackUsed := make([]bool, len(live))
	detUsed := make([]bool, len(detections))

	var res frameResult
	if len(live) > 0 && len(detections) > 0 {
		cost := BuildCostMatrix(live, detections)
		for _, a := range t.solver.Solve(cost) {
			if 1-cost[a.Row][a.Col] < t.cfg.IoUThreshold {
				continue
			}
			res.matches = append(res.matches, a)
			trackUsed[a.Row] = true
			detUsed[a.Col] = true
		}
	}

	for i, used := range trackUsed {
		if !used {
			res.unmatchedTracks = append(res.unmatchedTracks, i)
		}
	}
	for j, used := range detUsed {
		if !used {
			res.unmatchedDets = append(res.unmatchedDets, j)
		}
	}
	return res
}

// Config returns the settings the tracker was built with.
func (t *Tracker) Config() TrackerConfig { return t.cfg }

// LastStats reports the outcome of the most recent Update.
func (t *Tracker) LastStats() UpdateStats { return t.stats }

// Len returns the number of live tracks, pending and confirmed.
func (t *Tracker) Len() int { return len(t.table.tracks) }

// Tracks returns copies of the live tracks ordered by ID.
func (t *Tracker) Tracks() []Track {
	live := t.table.live()
	out := make([]Track, len(live))
	for i, tr := range live {
		out[i] = *tr
	}
	return out
}
