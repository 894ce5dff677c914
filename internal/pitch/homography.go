// Package pitch maps image coordinates onto pitch coordinates with a planar
// homography estimated from annotated point pairs.
package pitch

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/tabular"
)

var (
	ErrTooFewPoints = errors.New("need at least four point pairs to compute homography")
	ErrDegenerate   = errors.New("point pairs do not determine a homography")
)

// Point is an (x, y) coordinate.
type Point struct {
	X, Y float64
}

// PointPair is an image location annotated with its pitch location.
type PointPair struct {
	Image Point
	Pitch Point
}

// Homography is a 3×3 projective transform from image to pitch coordinates.
type Homography [3][3]float64

// LoadPointPairs reads a CSV with image_x, image_y, pitch_x and pitch_y columns.
// Extra columns are ignored.
func LoadPointPairs(r io.Reader) ([]PointPair, error) {
	rows, err := tabular.ReadColumns(r, "image_x", "image_y", "pitch_x", "pitch_y")
	if err != nil {
		return nil, fmt.Errorf("load point pairs: %w", err)
	}

	pairs := make([]PointPair, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, PointPair{
			Image: Point{row[0], row[1]},
			Pitch: Point{row[2], row[3]},
		})
	}
	return pairs, nil
}

// Estimate computes the least-squares homography through all pairs using
// the normalized direct linear transform.
func Estimate(pairs []PointPair) (Homography, error) {
	if len(pairs) < 4 {
		return Homography{}, ErrTooFewPoints
	}

	src := make([]Point, len(pairs))
	dst := make([]Point, len(pairs))
	for i, p := range pairs {
		src[i], dst[i] = p.Image, p.Pitch
	}
	tSrc, err := normalization(src)
	if err != nil {
		return Homography{}, err
	}
	tDst, err := normalization(dst)
	if err != nil {
		return Homography{}, err
	}

	a := mat.NewDense(2*len(pairs), 9, nil)
	for i := range pairs {
		x, y := tSrc.apply(src[i])
		u, v := tDst.apply(dst[i])
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Homography{}, fmt.Errorf("%w: svd did not converge", ErrDegenerate)
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[7]/sv[0] < 1e-12 {
		return Homography{}, ErrDegenerate
	}

	var vt mat.Dense
	svd.VTo(&vt)
	hn := mat.NewDense(3, 3, nil)
	for k := 0; k < 9; k++ {
		hn.Set(k/3, k%3, vt.At(k, 8))
	}

	// H = T_dst⁻¹ · Hn · T_src
	var tmp, h mat.Dense
	tmp.Mul(tDst.inverse(), hn)
	h.Mul(&tmp, tSrc.matrix())

	scale := h.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		return Homography{}, ErrDegenerate
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h.At(r, c) / scale
		}
	}
	return out, nil
}

// similarity is the Hartley normalization: translate the centroid to the
// origin and scale the mean distance to √2.
type similarity struct {
	s, cx, cy float64
}

func normalization(pts []Point) (similarity, error) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx, cy = cx/n, cy/n

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	if mean < 1e-12 {
		return similarity{}, ErrDegenerate
	}
	return similarity{s: math.Sqrt2 / mean, cx: cx, cy: cy}, nil
}

func (t similarity) apply(p Point) (float64, float64) {
	return t.s * (p.X - t.cx), t.s * (p.Y - t.cy)
}

func (t similarity) matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.s, 0, -t.s * t.cx,
		0, t.s, -t.s * t.cy,
		0, 0, 1,
	})
}

func (t similarity) inverse() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1 / t.s, 0, t.cx,
		0, 1 / t.s, t.cy,
		0, 0, 1,
	})
}

// Project maps an image point to pitch coordinates. Points on the vanishing
// line map to ±Inf.
func (h Homography) Project(x, y float64) (float64, float64) {
	px := h[0][0]*x + h[0][1]*y + h[0][2]
	py := h[1][0]*x + h[1][1]*y + h[1][2]
	w := h[2][0]*x + h[2][1]*y + h[2][2]
	return px / w, py / w
}

// ProjectRecords projects each record's centroid onto the pitch.
func (h Homography) ProjectRecords(records []models.TrackRecord) []models.PitchSample {
	out := make([]models.PitchSample, len(records))
	for i, r := range records {
		px, py := h.Project(r.Centroid[0], r.Centroid[1])
		out[i] = models.PitchSample{TrackRecord: r, PitchX: px, PitchY: py}
	}
	return out
}

type homographyFile struct {
	Homography [][]float64 `yaml:"homography"`
}

// Save writes the matrix as YAML under the "homography" key.
func (h Homography) Save(w io.Writer) error {
	doc := homographyFile{Homography: h.Rows()}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode homography: %w", err)
	}
	return nil
}

// Rows returns the matrix as nested slices.
func (h Homography) Rows() [][]float64 {
	rows := make([][]float64, 3)
	for r := range rows {
		rows[r] = []float64{h[r][0], h[r][1], h[r][2]}
	}
	return rows
}

// FromRows builds a Homography from a 3×3 nested slice.
func FromRows(rows [][]float64) (Homography, error) {
	var h Homography
	if len(rows) != 3 {
		return h, fmt.Errorf("homography must have 3 rows, got %d", len(rows))
	}
	for r, row := range rows {
		if len(row) != 3 {
			return h, fmt.Errorf("homography row %d must have 3 values, got %d", r, len(row))
		}
		copy(h[r][:], row)
	}
	return h, nil
}

// LoadHomography reads a matrix written by Save.
func LoadHomography(r io.Reader) (Homography, error) {
	var doc homographyFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Homography{}, fmt.Errorf("decode homography: %w", err)
	}
	if doc.Homography == nil {
		return Homography{}, errors.New("yaml missing 'homography'")
	}
	return FromRows(doc.Homography)
}
