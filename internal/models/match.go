package models

import (
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourceTypeFile    SourceType = "file"
	SourceTypeRTSP    SourceType = "rtsp"
	SourceTypeYouTube SourceType = "youtube"
	SourceTypeHTTP    SourceType = "http"
)

type MatchStatus string

const (
	MatchStatusStopped  MatchStatus = "stopped"
	MatchStatusRunning  MatchStatus = "running"
	MatchStatusFinished MatchStatus = "finished"
	MatchStatusError    MatchStatus = "error"
)

// Match is one video source processed by the tracking pipeline.
// Track IDs are scoped to a match: every match gets a fresh tracker.
type Match struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	SourceURL    string      `json:"source_url" db:"source_url"`
	SourceType   SourceType  `json:"source_type" db:"source_type"`
	FPS          int         `json:"fps" db:"fps"`
	Status       MatchStatus `json:"status" db:"status"`
	ErrorMessage string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// FrameTask is the message published to NATS for worker processing.
// FrameIndex increases by one per extracted frame within a match.
// A task with EndOfMatch set carries no frame; it tells the worker that the
// match source is exhausted and its tracker can be released.
type FrameTask struct {
	MatchID    uuid.UUID `json:"match_id"`
	FrameID    uuid.UUID `json:"frame_id"`
	FrameIndex int       `json:"frame_index"`
	Timestamp  time.Time `json:"timestamp"`
	FrameRef   string    `json:"frame_ref,omitempty"` // MinIO object key
	Width      int       `json:"width"`
	EndOfMatch bool      `json:"end_of_match,omitempty"`
}

const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// MatchCommand is a start/stop command sent from the API to the ingestor.
type MatchCommand struct {
	Action  string `json:"action"` // start, stop
	MatchID string `json:"match_id"`
	URL     string `json:"url,omitempty"`
	Type    string `json:"type,omitempty"`
	FPS     int    `json:"fps,omitempty"`
}
