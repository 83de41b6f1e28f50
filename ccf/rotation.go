package ccf

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// fitTreeRotation fits the whole-tree input rotation on the bagged rows.
// It returns the rotation matrix R (d×d, as rows) and the centering vector
// mu; inference applies (x - mu) R before traversal. A nil R means no
// rotation could be fitted and the tree trains on the raw inputs.
func fitTreeRotation(X *mat.Dense, Y *mat.Dense, rows []int, opts *Options, regression bool, rng *rand.Rand) ([][]float64, []float64) {
	_, d := X.Dims()

	switch opts.TreeRotation {
	case RotationRandom:
		return denseToRows(randomOrthonormal(d, rng)), colMeans(X, rows)

	case RotationPCA:
		R := pcaLite(gather(X, rows, allCols(d)))
		if R == nil {
			return nil, nil
		}
		return denseToRows(R), colMeans(X, rows)

	case RotationForest:
		R := rotationForestMatrix(X, Y, rows, opts, regression, rng)
		if R == nil {
			return nil, nil
		}
		return denseToRows(R), colMeans(X, rows)

	default:
		return nil, nil
	}
}

// pcaLite returns the full d×d principal-direction matrix of X (centered),
// padding past the numerical rank with the remaining full-SVD directions
// so the rotation stays square and orthonormal.
func pcaLite(X *mat.Dense) *mat.Dense {
	Xc := mat.DenseCopyOf(X)
	centerColumns(Xc)

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDFullV); !ok {
		return nil
	}
	var v mat.Dense
	svd.VTo(&v)
	return &v
}

// rotationForestMatrix assembles the block-diagonal Rotation-Forest
// rotation: columns are shuffled into blocks, each block gets a PCA fitted
// on a class-subsampled bootstrap of the bagged rows.
func rotationForestMatrix(X *mat.Dense, Y *mat.Dense, rows []int, opts *Options, regression bool, rng *rand.Rand) *mat.Dense {
	_, d := X.Dims()
	_, k := Y.Dims()

	m := opts.RotForestBlocks
	if m > d {
		m = d
	}
	if m < 1 {
		m = 1
	}

	cols := rng.Perm(d)
	blockSize := (d + m - 1) / m

	R := mat.NewDense(d, d, nil)
	for b := 0; b < m; b++ {
		lo := b * blockSize
		if lo >= d {
			break
		}
		hi := lo + blockSize
		if hi > d {
			hi = d
		}
		blockCols := cols[lo:hi]

		sample := rotForestSample(Y, rows, k, opts, regression, rng)
		var V *mat.Dense
		if len(sample) >= 2 {
			V = pcaLite(gather(X, sample, blockCols))
		}
		if V == nil {
			// degenerate block: identity
			for i := range blockCols {
				R.Set(blockCols[i], blockCols[i], 1)
			}
			continue
		}
		for i := range blockCols {
			for j := range blockCols {
				R.Set(blockCols[i], blockCols[j], V.At(i, j))
			}
		}
	}
	return R
}

// rotForestSample draws the row bootstrap for one block: classes are
// dropped with the leave-out probability (keeping at least one), the
// surviving rows are bootstrapped down to the configured fraction.
func rotForestSample(Y *mat.Dense, rows []int, k int, opts *Options, regression bool, rng *rand.Rand) []int {
	eligible := rows
	if !regression && k > 1 {
		keep := make([]bool, k)
		kept := 0
		for j := 0; j < k; j++ {
			if rng.Float64() >= opts.RotForestClassLeaveOut {
				keep[j] = true
				kept++
			}
		}
		if kept == 0 {
			keep[rng.Intn(k)] = true
		}

		var filtered []int
		for _, r := range rows {
			cls := 0
			best := math.Inf(-1)
			for j := 0; j < k; j++ {
				if Y.At(r, j) > best {
					best = Y.At(r, j)
					cls = j
				}
			}
			if keep[cls] {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) > 0 {
			eligible = filtered
		}
	}

	size := int(math.Ceil(opts.RotForestRowFraction * float64(len(eligible))))
	if size < 1 {
		size = 1
	}
	sample := make([]int, size)
	for i := range sample {
		sample[i] = eligible[rng.Intn(len(eligible))]
	}
	return sample
}

// applyRotation returns (X[rows] - mu) R as a fresh matrix.
func applyRotation(X *mat.Dense, rows []int, R [][]float64, mu []float64) *mat.Dense {
	d := len(mu)
	out := mat.NewDense(len(rows), d, nil)
	for i, r := range rows {
		for j := 0; j < d; j++ {
			var s float64
			for c := 0; c < d; c++ {
				s += (X.At(r, c) - mu[c]) * R[c][j]
			}
			out.Set(i, j, s)
		}
	}
	return out
}

// colMeans returns the per-column means of X over rows.
func colMeans(X *mat.Dense, rows []int) []float64 {
	_, d := X.Dims()
	mu := make([]float64, d)
	for _, r := range rows {
		for j := 0; j < d; j++ {
			mu[j] += X.At(r, j)
		}
	}
	for j := range mu {
		mu[j] /= float64(len(rows))
	}
	return mu
}

// allCols returns 0..d-1.
func allCols(d int) []int {
	out := make([]int, d)
	for i := range out {
		out[i] = i
	}
	return out
}

// denseToRows copies a dense matrix into a row-slice form that gob can
// persist directly.
func denseToRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}
