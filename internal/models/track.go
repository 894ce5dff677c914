package models

import "github.com/google/uuid"

// TrackRecord is one emitted observation of a confirmed track at one frame.
// The JSON shape is consumed by projection and xT aggregation and must stay stable.
type TrackRecord struct {
	TrackID    int64      `json:"track_id"`
	FrameIndex int        `json:"frame_index"`
	BBox       [4]float64 `json:"bbox"` // x1, y1, x2, y2
	Score      float64    `json:"score"`
	Centroid   [2]float64 `json:"centroid"`
}

// NewTrackRecord builds a record, deriving the centroid from the box.
func NewTrackRecord(trackID int64, frameIndex int, bbox [4]float64, score float64) TrackRecord {
	return TrackRecord{
		TrackID:    trackID,
		FrameIndex: frameIndex,
		BBox:       bbox,
		Score:      score,
		Centroid:   [2]float64{(bbox[0] + bbox[2]) / 2, (bbox[1] + bbox[3]) / 2},
	}
}

// TrackBatch carries all records a tracker emitted for one frame of a match.
type TrackBatch struct {
	MatchID    uuid.UUID     `json:"match_id"`
	FrameIndex int           `json:"frame_index"`
	Records    []TrackRecord `json:"records"`
}

// PitchSample is a track record projected into pitch coordinates (meters).
type PitchSample struct {
	TrackRecord
	PitchX float64 `json:"pitch_x"`
	PitchY float64 `json:"pitch_y"`
}

// ThreatScore is the accumulated expected-threat contribution of one track.
type ThreatScore struct {
	TrackID int64   `json:"track_id"`
	XT      float64 `json:"xt"`
}

// VideoInfo describes the source of an offline tracking run.
type VideoInfo struct {
	FPS         float64 `json:"fps"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
	FrameCount  int     `json:"frame_count"`
}

// TrackFile is the JSON document written by an offline tracking run.
type TrackFile struct {
	Video  VideoInfo     `json:"video"`
	Tracks []TrackRecord `json:"tracks"`
}
