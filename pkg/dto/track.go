package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/pitchtrack/internal/models"
)

type TrackListResponse struct {
	MatchID uuid.UUID            `json:"match_id"`
	Records []models.TrackRecord `json:"records"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

type HomographyResponse struct {
	MatchID    uuid.UUID   `json:"match_id"`
	Homography [][]float64 `json:"homography"`
	Points     int         `json:"points"`
}

type ThreatResponse struct {
	MatchID uuid.UUID            `json:"match_id"`
	Scores  []models.ThreatScore `json:"scores"`
}

// WSTrackBatch is pushed to WebSocket clients for every stored batch.
type WSTrackBatch struct {
	Type       string               `json:"type"` // "tracks"
	MatchID    uuid.UUID            `json:"match_id"`
	FrameIndex int                  `json:"frame_index"`
	Records    []models.TrackRecord `json:"records"`
}

func NewWSTrackBatch(b models.TrackBatch) *WSTrackBatch {
	return &WSTrackBatch{
		Type:       "tracks",
		MatchID:    b.MatchID,
		FrameIndex: b.FrameIndex,
		Records:    b.Records,
	}
}
