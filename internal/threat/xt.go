// Package threat scores player movement with an expected-threat (xT) grid.
package threat

import (
	"encoding/csv"
	"fmt"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/tabular"
)

// MaxBins bounds the grid along each axis.
const MaxBins = 512

var (
	// ErrMissingColumns is returned when the xT table lacks x_bin, y_bin or value.
	ErrMissingColumns = tabular.ErrMissingColumns
	// ErrInvalidBin is returned for a bin index that is not an integer in
	// [0, MaxBins).
	ErrInvalidBin = errors.New("invalid xT bin")
)

// Table is an xT grid laid over a pitch of the given dimensions.
// Grid is indexed [y][x].
type Table struct {
	Length float64
	Width  float64
	NX, NY int
	Grid   [][]float64
}

// LoadTable reads a CSV with x_bin, y_bin and value columns. The grid size
// is the largest bin index plus one along each axis; missing cells are 0.
func LoadTable(r io.Reader, pitchLength, pitchWidth float64) (*Table, error) {
	if pitchLength <= 0 || pitchWidth <= 0 {
		return nil, fmt.Errorf("pitch dimensions must be positive, got %vx%v", pitchLength, pitchWidth)
	}
	rows, err := tabular.ReadColumns(r, "x_bin", "y_bin", "value")
	if err != nil {
		return nil, fmt.Errorf("load xT table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("load xT table: no rows")
	}

	nx, ny := 0, 0
	for i, row := range rows {
		if !validBin(row[0]) || !validBin(row[1]) {
			return nil, fmt.Errorf("load xT table: row %d: %w (%v, %v)", i+1, ErrInvalidBin, row[0], row[1])
		}
		nx = max(nx, int(row[0])+1)
		ny = max(ny, int(row[1])+1)
	}

	grid := make([][]float64, ny)
	for y := range grid {
		grid[y] = make([]float64, nx)
	}
	for _, row := range rows {
		grid[int(row[1])][int(row[0])] = row[2]
	}

	return &Table{Length: pitchLength, Width: pitchWidth, NX: nx, NY: ny, Grid: grid}, nil
}

// ValueAt returns the xT value of the cell containing pitch point (px, py).
// Points off the pitch are clipped to the nearest edge cell; a NaN
// coordinate maps to the first cell on its axis.
func (t *Table) ValueAt(px, py float64) float64 {
	xn := clip(px/t.Length, 0, 0.999)
	yn := clip(py/t.Width, 0, 0.999)
	return t.Grid[int(yn*float64(t.NY))][int(xn*float64(t.NX))]
}

func validBin(v float64) bool {
	return v >= 0 && v < MaxBins && v == math.Trunc(v)
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Compute sums, per track, the change in xT between consecutive samples in
// frame order. The result is sorted by track ID.
func Compute(samples []models.PitchSample, table *Table) []models.ThreatScore {
	if len(samples) == 0 {
		return nil
	}

	sorted := make([]models.PitchSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TrackID != sorted[j].TrackID {
			return sorted[i].TrackID < sorted[j].TrackID
		}
		return sorted[i].FrameIndex < sorted[j].FrameIndex
	})

	var scores []models.ThreatScore
	var prev float64
	for i, s := range sorted {
		v := table.ValueAt(s.PitchX, s.PitchY)
		if i == 0 || s.TrackID != sorted[i-1].TrackID {
			scores = append(scores, models.ThreatScore{TrackID: s.TrackID})
		} else {
			scores[len(scores)-1].XT += v - prev
		}
		prev = v
	}
	return scores
}

// WriteScoresCSV writes track_id,xt rows.
func WriteScoresCSV(w io.Writer, scores []models.ThreatScore) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"track_id", "xt"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range scores {
		row := []string{strconv.FormatInt(s.TrackID, 10), strconv.FormatFloat(s.XT, 'g', -1, 64)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
