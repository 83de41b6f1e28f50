package ccf

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ttomita/ccfs/pkg/errors"
)

// gather copies X[rows, cols] into a fresh dense matrix.
func gather(X *mat.Dense, rows []int, cols []int) *mat.Dense {
	out := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, X.At(r, c))
		}
	}
	return out
}

// centerColumns subtracts the column means in place and returns the means.
func centerColumns(m *mat.Dense) []float64 {
	r, c := m.Dims()
	mu := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		mu[j] = stat.Mean(col, nil)
		for i := 0; i < r; i++ {
			m.Set(i, j, m.At(i, j)-mu[j])
		}
	}
	return mu
}

// thinSVD factorizes m and returns U, singular values, and V with
// rank-deficient components removed. Returns rank 0 when the matrix is
// numerically zero.
func thinSVD(m *mat.Dense) (*mat.Dense, []float64, *mat.Dense, int) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, nil, nil, 0
	}
	sv := svd.Values(nil)
	if len(sv) == 0 || sv[0] <= 0 {
		return nil, nil, nil, 0
	}

	r, c := m.Dims()
	larger := r
	if c > larger {
		larger = c
	}
	tol := float64(larger) * machEps * sv[0]

	rank := 0
	for _, s := range sv {
		if s > tol {
			rank++
		}
	}
	if rank == 0 {
		return nil, nil, nil, 0
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	ur := u.Slice(0, r, 0, rank).(*mat.Dense)
	vr := v.Slice(0, c, 0, rank).(*mat.Dense)
	return ur, sv[:rank], vr, rank
}

// fitCCA computes canonical correlation directions for the X side of the
// pair (X, Y). Both matrices are centered and whitened through their thin
// SVDs; the directions are the X-side canonical vectors, one column per
// canonical pair. Rank-deficient inputs yield fewer columns; a numerically
// constant input yields none.
func fitCCA(X, Y *mat.Dense) (*mat.Dense, error) {
	n, d := X.Dims()
	if n < 2 {
		return nil, nil
	}

	Xc := mat.DenseCopyOf(X)
	Yc := mat.DenseCopyOf(Y)
	centerColumns(Xc)
	centerColumns(Yc)

	ux, sx, vx, rx := thinSVD(Xc)
	if rx == 0 {
		return nil, nil
	}
	uy, _, _, ry := thinSVD(Yc)
	if ry == 0 {
		return nil, nil
	}

	// Correlation structure between the two whitened bases.
	var c mat.Dense
	c.Mul(ux.T(), uy)

	var svd mat.SVD
	if ok := svd.Factorize(&c, mat.SVDThin); !ok {
		return nil, errors.NewModelError("fitCCA", "svd failed", errors.ErrSingularMatrix)
	}
	var l mat.Dense
	svd.UTo(&l)

	p := rx
	if ry < p {
		p = ry
	}
	lp := l.Slice(0, rx, 0, p).(*mat.Dense)

	// A = Vx * diag(1/sx) * L * sqrt(n-1), mapping whitened canonical
	// vectors back to the original column space.
	scaled := mat.NewDense(rx, p, nil)
	for i := 0; i < rx; i++ {
		for j := 0; j < p; j++ {
			scaled.Set(i, j, lp.At(i, j)/sx[i])
		}
	}
	proj := mat.NewDense(d, p, nil)
	proj.Mul(vx, scaled)
	proj.Scale(math.Sqrt(float64(n-1)), proj)

	if !allFinite(proj) {
		return nil, errors.NewInvariantError("fitCCA", "projection contains non-finite entries")
	}
	return proj, nil
}

// fitCCAClasswise fits one CCA direction per Y column with non-negligible
// mass, pairing X against that column alone.
func fitCCAClasswise(X, Y *mat.Dense) (*mat.Dense, error) {
	n, d := X.Dims()
	_, k := Y.Dims()

	var dirs []*mat.Dense
	for j := 0; j < k; j++ {
		var mass float64
		for i := 0; i < n; i++ {
			mass += math.Abs(Y.At(i, j))
		}
		if mass <= 1e-12 {
			continue
		}
		col := mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			col.Set(i, 0, Y.At(i, j))
		}
		dir, err := fitCCA(X, col)
		if err != nil {
			return nil, err
		}
		if dir != nil {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil, nil
	}

	total := 0
	for _, m := range dirs {
		_, c := m.Dims()
		total += c
	}
	out := mat.NewDense(d, total, nil)
	at := 0
	for _, m := range dirs {
		_, c := m.Dims()
		for j := 0; j < c; j++ {
			for i := 0; i < d; i++ {
				out.Set(i, at, m.At(i, j))
			}
			at++
		}
	}
	return out, nil
}

// fitPCA returns the orthonormal principal directions of X, dropping
// components beyond the numerical rank.
func fitPCA(X *mat.Dense) *mat.Dense {
	Xc := mat.DenseCopyOf(X)
	centerColumns(Xc)
	_, _, v, rank := thinSVD(Xc)
	if rank == 0 {
		return nil
	}
	return v
}

// randomOrthonormal returns a d×d orthonormal matrix from the QR
// factorization of a Gaussian matrix.
func randomOrthonormal(d int, rng *rand.Rand) *mat.Dense {
	g := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			g.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(g)
	var q mat.Dense
	qr.QTo(&q)
	return &q
}

// identityCols returns a d×d identity matrix.
func identityCols(d int) *mat.Dense {
	out := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		out.Set(i, i, 1)
	}
	return out
}

// hcat concatenates matrices with equal row counts column-wise, skipping
// nils. Returns nil when nothing remains.
func hcat(ms ...*mat.Dense) *mat.Dense {
	var kept []*mat.Dense
	rows, total := 0, 0
	for _, m := range ms {
		if m == nil {
			continue
		}
		r, c := m.Dims()
		if c == 0 {
			continue
		}
		kept = append(kept, m)
		rows = r
		total += c
	}
	if len(kept) == 0 {
		return nil
	}
	out := mat.NewDense(rows, total, nil)
	at := 0
	for _, m := range kept {
		_, c := m.Dims()
		for j := 0; j < c; j++ {
			for i := 0; i < rows; i++ {
				out.Set(i, at, m.At(i, j))
			}
			at++
		}
	}
	return out
}

// fitProjections builds the candidate direction matrix for a node from the
// enabled projection kinds. X and Y are the (possibly bootstrapped) bag
// restricted to the node's sampled columns. The result has one row per
// sampled column; nil means no fitted directions.
func fitProjections(X, Y *mat.Dense, opts *Options, rng *rand.Rand) (*mat.Dense, error) {
	_, d := X.Dims()

	var parts []*mat.Dense
	if opts.Projections[ProjectionCCA] {
		p, err := fitCCA(X, Y)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	if opts.Projections[ProjectionCCAClasswise] {
		p, err := fitCCAClasswise(X, Y)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	if opts.Projections[ProjectionPCA] {
		parts = append(parts, fitPCA(X))
	}
	if opts.Projections[ProjectionRandom] {
		parts = append(parts, randomOrthonormal(d, rng))
	}
	if opts.Projections[ProjectionOriginal] {
		parts = append(parts, identityCols(d))
	}

	return hcat(parts...), nil
}

// composeOriginalAxes applies the include_original_axes policy to the
// fitted projection matrix. It returns the final projection matrix and the
// column indices its rows refer to. In the "all" mode the still-active
// columns are re-derived from featureGroups so columns invalidated during
// this node's resampling loop stay excluded.
func composeOriginalAxes(P *mat.Dense, inCols []int, featureGroups []int, mode OriginalAxes) (*mat.Dense, []int) {
	d := len(inCols)

	switch mode {
	case OriginalAxesOff:
		return P, inCols

	case OriginalAxesSampled:
		return hcat(P, identityCols(d)), inCols

	default: // OriginalAxesAll
		var active []int
		for c, g := range featureGroups {
			if g >= 0 {
				active = append(active, c)
			}
		}
		colPos := make(map[int]int, len(active))
		for i, c := range active {
			colPos[c] = i
		}

		var expanded *mat.Dense
		if P != nil {
			_, p := P.Dims()
			expanded = mat.NewDense(len(active), p, nil)
			for i, c := range inCols {
				if ai, ok := colPos[c]; ok {
					for j := 0; j < p; j++ {
						expanded.Set(ai, j, P.At(i, j))
					}
				}
			}
		}
		return hcat(expanded, identityCols(len(active))), active
	}
}
