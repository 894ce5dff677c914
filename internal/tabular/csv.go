// Package tabular reads numeric CSV tables addressed by column name.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	ErrMissingColumns = errors.New("csv missing required columns")
	ErrNonFinite      = errors.New("csv value is not finite")
)

// ReadColumns returns the values of the named columns for every data row,
// in the order the columns were requested. The first row is the header.
func ReadColumns(r io.Reader, columns ...string) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := make([]int, len(columns))
	var missing []string
	for i, name := range columns {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var rows [][]float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		vals := make([]float64, len(columns))
		for i, j := range idx {
			if j >= len(rec) {
				return nil, fmt.Errorf("line %d: missing value for %s", line, columns[i])
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, columns[i], err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d column %s: %w: %q", line, columns[i], ErrNonFinite, rec[j])
			}
			vals[i] = v
		}
		rows = append(rows, vals)
	}
	return rows, nil
}
