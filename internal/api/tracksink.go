package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/pkg/dto"
)

// TrackWriter persists emitted track records.
type TrackWriter interface {
	InsertTrackRecords(ctx context.Context, matchID uuid.UUID, records []models.TrackRecord) error
}

// Broadcaster pushes batches to live clients.
type Broadcaster interface {
	BroadcastTracks(batch *dto.WSTrackBatch)
}

// TrackSink stores every batch from the TRACKS stream and fans it out to
// WebSocket clients.
type TrackSink struct {
	db  TrackWriter
	hub Broadcaster
}

func NewTrackSink(db TrackWriter, hub Broadcaster) *TrackSink {
	return &TrackSink{db: db, hub: hub}
}

// Handle decodes and processes one batch payload. Clients only see batches
// that were stored.
func (s *TrackSink) Handle(ctx context.Context, data []byte) error {
	var batch models.TrackBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("unmarshal track batch: %w", err)
	}
	if err := s.db.InsertTrackRecords(ctx, batch.MatchID, batch.Records); err != nil {
		return err
	}
	s.hub.BroadcastTracks(dto.NewWSTrackBatch(batch))
	return nil
}

// HandleMsg adapts Handle to a JetStream message handler.
func (s *TrackSink) HandleMsg(ctx context.Context, msg jetstream.Msg) error {
	return s.Handle(ctx, msg.Data())
}
