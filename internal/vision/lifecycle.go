package vision

import (
	"sort"

	"github.com/your-org/pitchtrack/internal/models"
)

// trackTable owns the live tracks of one tracker and applies per-frame
// association results to them.
type trackTable struct {
	tracks  map[int64]*Track
	nextID  int64
	maxAge  int
	minHits int
}

func newTrackTable(maxAge, minHits int) *trackTable {
	return &trackTable{
		tracks:  make(map[int64]*Track),
		nextID:  1,
		maxAge:  maxAge,
		minHits: minHits,
	}
}

// live returns the tracks ordered by ascending ID. This ordering defines the
// cost-matrix rows for the frame.
func (tt *trackTable) live() []*Track {
	out := make([]*Track, 0, len(tt.tracks))
	for _, tr := range tt.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// frameResult is the association outcome for one frame, in index space of
// the live slice (rows) and the detection slice (columns).
type frameResult struct {
	matches         []Assignment
	unmatchedTracks []int
	unmatchedDets   []int
}

// apply updates matched tracks, ages unmatched ones, spawns tracks for
// unmatched detections and returns the records to emit for the frame.
func (tt *trackTable) apply(frameIndex int, live []*Track, dets []Detection, res frameResult) ([]models.TrackRecord, UpdateStats) {
	var (
		records []models.TrackRecord
		stats   UpdateStats
	)

	for _, m := range res.matches {
		tr := live[m.Row]
		det := dets[m.Col]
		tr.BBox = det.BBox
		tr.Score = det.Score
		tr.Age = 0
		tr.Hits++
		tr.LastFrame = frameIndex
		tt.refreshState(tr)
		stats.Matched++
		if tr.state == TrackConfirmed {
			records = append(records, tt.record(tr, frameIndex))
		}
	}

	// Deletions wait until every read of the table for this frame is done.
	var stale []int64
	for _, row := range res.unmatchedTracks {
		tr := live[row]
		tr.Age++
		if tr.Age > tt.maxAge {
			stale = append(stale, tr.ID)
		}
	}

	for _, col := range res.unmatchedDets {
		det := dets[col]
		tr := &Track{
			ID:        tt.nextID,
			BBox:      det.BBox,
			Score:     det.Score,
			Hits:      1,
			LastFrame: frameIndex,
		}
		tt.nextID++
		tt.refreshState(tr)
		tt.tracks[tr.ID] = tr
		stats.Spawned++
		if tr.state == TrackConfirmed {
			records = append(records, tt.record(tr, frameIndex))
		}
	}

	for _, id := range stale {
		delete(tt.tracks, id)
	}
	stats.Evicted = len(stale)
	stats.Emitted = len(records)
	stats.Live = len(tt.tracks)
	return records, stats
}

func (tt *trackTable) refreshState(tr *Track) {
	if tr.Hits >= tt.minHits {
		tr.state = TrackConfirmed
	} else {
		tr.state = TrackPending
	}
}

func (tt *trackTable) record(tr *Track, frameIndex int) models.TrackRecord {
	return models.NewTrackRecord(tr.ID, frameIndex, tr.BBox, tr.Score)
}
