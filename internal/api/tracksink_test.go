package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/pkg/dto"
)

type recordingWriter struct {
	matchID uuid.UUID
	records []models.TrackRecord
	err     error
}

func (w *recordingWriter) InsertTrackRecords(_ context.Context, matchID uuid.UUID, records []models.TrackRecord) error {
	if w.err != nil {
		return w.err
	}
	w.matchID = matchID
	w.records = append(w.records, records...)
	return nil
}

type recordingHub struct {
	batches []*dto.WSTrackBatch
}

func (h *recordingHub) BroadcastTracks(b *dto.WSTrackBatch) { h.batches = append(h.batches, b) }

func batchJSON(t *testing.T, b models.TrackBatch) []byte {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return data
}

func TestTrackSink_StoresThenBroadcasts(t *testing.T) {
	w, hub := &recordingWriter{}, &recordingHub{}
	sink := NewTrackSink(w, hub)

	matchID := uuid.New()
	batch := models.TrackBatch{
		MatchID:    matchID,
		FrameIndex: 12,
		Records:    []models.TrackRecord{models.NewTrackRecord(2, 12, [4]float64{0, 0, 4, 8}, 0.6)},
	}
	require.NoError(t, sink.Handle(context.Background(), batchJSON(t, batch)))

	assert.Equal(t, matchID, w.matchID)
	assert.Equal(t, batch.Records, w.records)
	require.Len(t, hub.batches, 1)
	assert.Equal(t, 12, hub.batches[0].FrameIndex)
	assert.Equal(t, "tracks", hub.batches[0].Type)
}

func TestTrackSink_StoreFailureSkipsBroadcast(t *testing.T) {
	w, hub := &recordingWriter{err: errors.New("db down")}, &recordingHub{}
	sink := NewTrackSink(w, hub)

	err := sink.Handle(context.Background(), batchJSON(t, models.TrackBatch{MatchID: uuid.New()}))
	assert.Error(t, err)
	assert.Empty(t, hub.batches)
}

func TestTrackSink_BadPayload(t *testing.T) {
	sink := NewTrackSink(&recordingWriter{}, &recordingHub{})
	assert.Error(t, sink.Handle(context.Background(), []byte("not json")))
}
