package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/pitch"
	"github.com/your-org/pitchtrack/internal/storage"
)

// Store is the persistence the handlers need; *storage.PostgresStore
// implements it.
type Store interface {
	Ping(ctx context.Context) error

	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	ListMatches(ctx context.Context) ([]models.Match, error)
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, status models.MatchStatus, errMsg string) error
	DeleteMatch(ctx context.Context, id uuid.UUID) error

	QueryTrackRecords(ctx context.Context, matchID uuid.UUID, q storage.TrackQuery) ([]models.TrackRecord, int, error)

	SaveHomography(ctx context.Context, matchID uuid.UUID, h pitch.Homography) error
	GetHomography(ctx context.Context, matchID uuid.UUID) (pitch.Homography, error)

	SaveThreatScores(ctx context.Context, matchID uuid.UUID, scores []models.ThreatScore) error
	ListThreatScores(ctx context.Context, matchID uuid.UUID) ([]models.ThreatScore, error)
}

// ControlPublisher sends match commands to the ingestor.
type ControlPublisher interface {
	PublishControl(cmd any) error
	Ping() error
}

// ObjectStore holds the extracted frames of each match.
type ObjectStore interface {
	Ping(ctx context.Context) error
	DeleteFrames(ctx context.Context, matchID string) (int, error)
}
