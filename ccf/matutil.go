package ccf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// machEps is the double-precision machine epsilon.
var machEps = math.Nextafter(1, 2) - 1

// gainTol is the relative tolerance used when comparing split gains.
var gainTol = 10 * machEps

// approxEqual reports whether two gains are equal under the relative
// comparison tolerance.
func approxEqual(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	return diff <= gainTol*scale
}

// colVaries reports whether column c of X varies by more than tol over the
// given rows.
func colVaries(X *mat.Dense, rows []int, c int, tol float64) bool {
	if len(rows) < 2 {
		return false
	}
	col := make([]float64, len(rows))
	for i, r := range rows {
		col[i] = X.At(r, c)
	}
	return floats.Max(col)-floats.Min(col) > tol
}

// anyColVaries reports whether any of the given columns varies over rows.
func anyColVaries(X *mat.Dense, rows []int, cols []int, tol float64) bool {
	for _, c := range cols {
		if colVaries(X, rows, c, tol) {
			return true
		}
	}
	return false
}

// twoUniqueRows reports whether X[rows, cols] contains exactly two distinct
// rows under tol, returning their indices into rows. Rows equal to the
// first row are excluded; the test passes iff all remaining rows equal a
// single other row.
func twoUniqueRows(X *mat.Dense, rows []int, cols []int, tol float64) (int, int, bool) {
	if len(rows) < 2 {
		return 0, 0, false
	}
	rowsEqual := func(a, b int) bool {
		for _, c := range cols {
			if math.Abs(X.At(a, c)-X.At(b, c)) > tol {
				return false
			}
		}
		return true
	}

	second := -1
	for i := 1; i < len(rows); i++ {
		if rowsEqual(rows[0], rows[i]) {
			continue
		}
		if second < 0 {
			second = i
			continue
		}
		if !rowsEqual(rows[second], rows[i]) {
			return 0, 0, false
		}
	}
	if second < 0 {
		return 0, 0, false
	}
	return 0, second, true
}

// colSums returns the per-column sums of Y over rows.
func colSums(Y *mat.Dense, rows []int) []float64 {
	_, k := Y.Dims()
	sums := make([]float64, k)
	for _, r := range rows {
		for j := 0; j < k; j++ {
			sums[j] += Y.At(r, j)
		}
	}
	return sums
}

// massiveColumns counts the columns of Y whose absolute column sum over
// rows exceeds the negligible-mass threshold.
func massiveColumns(Y *mat.Dense, rows []int) int {
	_, k := Y.Dims()
	count := 0
	for j := 0; j < k; j++ {
		var s float64
		for _, r := range rows {
			s += math.Abs(Y.At(r, j))
		}
		if s > 1e-12 {
			count++
		}
	}
	return count
}

// safeDivide returns a/b, or 0 when b is 0.
func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// allFinite reports whether every entry of the matrix is finite.
func allFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// midpoint computes the partition point between two adjacent sorted
// projected values with cancellation-robust arithmetic: anchoring on lo
// avoids precision loss when both values are large and nearly equal.
func midpoint(lo, hi float64) float64 {
	return 0.5*(lo-lo) + 0.5*(hi-lo) + lo
}
