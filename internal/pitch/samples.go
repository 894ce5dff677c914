package pitch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/tabular"
)

var sampleHeader = []string{
	"track_id", "frame_index",
	"bbox_x1", "bbox_y1", "bbox_x2", "bbox_y2",
	"score", "pitch_x", "pitch_y",
}

// WriteSamplesCSV writes projected samples with one row per record.
func WriteSamplesCSV(w io.Writer, samples []models.PitchSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sampleHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, s := range samples {
		row := []string{
			strconv.FormatInt(s.TrackID, 10),
			strconv.Itoa(s.FrameIndex),
			f(s.BBox[0]), f(s.BBox[1]), f(s.BBox[2]), f(s.BBox[3]),
			f(s.Score), f(s.PitchX), f(s.PitchY),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadSamplesCSV reads the track_id, frame_index, pitch_x and pitch_y
// columns of a projected-samples CSV. Other columns are ignored.
func ReadSamplesCSV(r io.Reader) ([]models.PitchSample, error) {
	rows, err := tabular.ReadColumns(r, "track_id", "frame_index", "pitch_x", "pitch_y")
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	samples := make([]models.PitchSample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, models.PitchSample{
			TrackRecord: models.TrackRecord{TrackID: int64(row[0]), FrameIndex: int(row[1])},
			PitchX:      row[2],
			PitchY:      row[3],
		})
	}
	return samples, nil
}
