package vision

import (
	"math"
	"sort"
)

// Assignment pairs cost-matrix row Row (a track) with column Col (a detection).
type Assignment struct {
	Row int
	Col int
}

// Solver computes a minimum-cost bipartite matching over a cost matrix.
// Implementations must return exactly min(rows, cols) pairs and must be
// deterministic for identical input.
type Solver interface {
	Solve(cost [][]float64) []Assignment
}

// HungarianSolver implements Solver with the Kuhn-Munkres algorithm using
// row/column potentials (Jonker-Volgenant shortest augmenting paths), O(n³).
//
// Rectangular matrices are padded to square with zero-cost dummy rows below
// the real ones; a matrix with more rows than columns is solved transposed so
// dummies are always rows. Real rows are augmented first and columns are
// scanned in ascending order with strict comparisons, so among equal-cost
// candidates the lowest row and then the lowest column wins.
type HungarianSolver struct{}

func (HungarianSolver) Solve(cost [][]float64) []Assignment {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		return nil
	}

	if n > m {
		pairs := solveWide(transpose(cost, m), m, n)
		for i := range pairs {
			pairs[i].Row, pairs[i].Col = pairs[i].Col, pairs[i].Row
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].Row < pairs[b].Row })
		return pairs
	}
	return solveWide(cost, n, m)
}

func transpose(cost [][]float64, m int) [][]float64 {
	t := make([][]float64, m)
	for j := range t {
		t[j] = make([]float64, len(cost))
		for i := range cost {
			t[j][i] = cost[i][j]
		}
	}
	return t
}

// solveWide solves an n×m matrix with n <= m.
func solveWide(cost [][]float64, n, m int) []Assignment {
	dim := m
	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		if i < n {
			copy(c[i], cost[i][:m])
		}
	}

	// 1-indexed; column 0 is the virtual start of each augmenting path.
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)   // p[j] = row matched to column j
	way := make([]int, dim+1) // way[j] = previous column on the path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	out := make([]Assignment, 0, min(n, m))
	for j := 1; j <= dim; j++ {
		row, col := p[j]-1, j-1
		if row < 0 || row >= n {
			continue
		}
		out = append(out, Assignment{Row: row, Col: col})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Row < out[b].Row })
	return out
}
