package recommend

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Match is one ranked row.
type Match struct {
	Row   int
	Score float64
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero
// vector.
func Cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// TopK scores every row of m against v and returns the k best rows by
// descending similarity. Ties keep row order.
func TopK(m mat.Matrix, v []float64, k int) []Match {
	rows, cols := m.Dims()
	if k <= 0 || rows == 0 || cols != len(v) {
		return nil
	}

	matches := make([]Match, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, m)
		score := Cosine(row, v)
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		matches[i] = Match{Row: i, Score: score}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k > rows {
		k = rows
	}
	return matches[:k]
}
