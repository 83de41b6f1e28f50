package ccf

import (
	"math"
	"math/rand"
	"sort"
)

// splitResult records the winner of the split search over a projected node.
type splitResult struct {
	dir       int     // winning direction (column of U)
	gain      float64 // best gain across directions
	partition float64 // threshold on the projected axis
}

// dirBest is the per-direction outcome of the sorted scan.
type dirBest struct {
	gain      float64
	partition float64
	ok        bool
}

// giniImpurity computes 1 - sum p^2 over row-normalised counts.
func giniImpurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	s := 0.0
	for _, c := range counts {
		p := c / total
		s += p * p
	}
	return 1 - s
}

// infoImpurity computes the entropy -sum p log2 p with 0 log 0 = 0.
func infoImpurity(counts []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	s := 0.0
	for _, c := range counts {
		if c <= 0 {
			continue
		}
		p := c / total
		s -= p * math.Log2(p)
	}
	return s
}

// mseImpurity computes the variance of the targets summed over output
// columns, from running sums and sums of squares.
func mseImpurity(sums, sumSquares []float64, n float64) float64 {
	if n <= 0 {
		return 0
	}
	s := 0.0
	for j := range sums {
		mean := sums[j] / n
		s += sumSquares[j]/n - mean*mean
	}
	if s < 0 {
		s = 0
	}
	return s
}

// evaluateSplits runs the sorted split search over every direction of the
// projected node data U (n rows, one slice per direction) against targets
// Y[rows]. It returns the winning direction, gain, and partition point.
// A best gain below zero means the node cannot usefully split.
func evaluateSplits(U [][]float64, Y matrixAt, rows []int, k int, opts *Options, rng *rand.Rand) splitResult {
	n := len(rows)
	best := splitResult{dir: -1, gain: math.Inf(-1)}
	if n < 2 {
		return best
	}

	totals := make([]float64, k)
	var totalSquares []float64
	regression := opts.SplitCriterion == CriterionMSE
	if regression {
		totalSquares = make([]float64, k)
	}
	for _, r := range rows {
		for j := 0; j < k; j++ {
			v := Y.At(r, j)
			totals[j] += v
			if regression {
				totalSquares[j] += v * v
			}
		}
	}

	var parent float64
	switch opts.SplitCriterion {
	case CriterionGini:
		parent = giniImpurity(totals, float64(n))
	case CriterionInfo:
		parent = infoImpurity(totals, float64(n))
	default:
		parent = mseImpurity(totals, totalSquares, float64(n))
	}

	var tied []int
	bests := make([]dirBest, len(U))

	for dir := range U {
		bests[dir] = bestSplitForDirection(U[dir], Y, rows, totals, totalSquares, parent, opts, rng)
		db := bests[dir]
		if !db.ok {
			continue
		}
		switch {
		case best.dir < 0 || (db.gain > best.gain && !approxEqual(db.gain, best.gain)):
			best = splitResult{dir: dir, gain: db.gain, partition: db.partition}
			tied = tied[:0]
			tied = append(tied, dir)
		case approxEqual(db.gain, best.gain):
			tied = append(tied, dir)
		}
	}

	if best.dir < 0 {
		return best
	}

	if len(tied) > 1 && opts.DirIfEqual == TieBreakRand {
		pick := tied[rng.Intn(len(tied))]
		best = splitResult{dir: pick, gain: bests[pick].gain, partition: bests[pick].partition}
	}
	return best
}

// matrixAt is the minimal read interface the splitter needs from Y.
type matrixAt interface {
	At(i, j int) float64
}

// bestSplitForDirection scans the sorted candidates of one direction.
// Candidate k splits the sorted order after position k and is legal only
// when a gap larger than the variation tolerance separates the adjacent
// projected values. Equal-gain candidates are resolved uniformly at random.
func bestSplitForDirection(u []float64, Y matrixAt, rows []int, totals, totalSquares []float64, parent float64, opts *Options, rng *rand.Rand) dirBest {
	n := len(rows)
	k := len(totals)
	regression := totalSquares != nil

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return u[order[a]] < u[order[b]] })

	left := make([]float64, k)
	var leftSquares []float64
	if regression {
		leftSquares = make([]float64, k)
	}
	right := make([]float64, k)
	var rightSquares []float64
	if regression {
		rightSquares = make([]float64, k)
	}

	bestGain := math.Inf(-1)
	var tiedCuts []int

	for cut := 0; cut < n-1; cut++ {
		r := rows[order[cut]]
		for j := 0; j < k; j++ {
			v := Y.At(r, j)
			left[j] += v
			if regression {
				leftSquares[j] += v * v
			}
		}

		if u[order[cut+1]]-u[order[cut]] <= opts.XVariationTol {
			continue
		}

		nl := float64(cut + 1)
		nr := float64(n - cut - 1)
		for j := 0; j < k; j++ {
			right[j] = totals[j] - left[j]
			if regression {
				rightSquares[j] = totalSquares[j] - leftSquares[j]
			}
		}

		var lm, rm float64
		switch opts.SplitCriterion {
		case CriterionGini:
			lm = giniImpurity(left, nl)
			rm = giniImpurity(right, nr)
		case CriterionInfo:
			lm = infoImpurity(left, nl)
			rm = infoImpurity(right, nr)
		default:
			lm = mseImpurity(left, leftSquares, nl)
			rm = mseImpurity(right, rightSquares, nr)
		}

		gain := parent - (nl*lm+nr*rm)/float64(n)

		switch {
		case len(tiedCuts) == 0 || (gain > bestGain && !approxEqual(gain, bestGain)):
			bestGain = gain
			tiedCuts = tiedCuts[:0]
			tiedCuts = append(tiedCuts, cut)
		case approxEqual(gain, bestGain):
			tiedCuts = append(tiedCuts, cut)
		}
	}

	if len(tiedCuts) == 0 {
		return dirBest{ok: false}
	}

	cut := tiedCuts[0]
	if len(tiedCuts) > 1 {
		cut = tiedCuts[rng.Intn(len(tiedCuts))]
	}
	return dirBest{
		gain:      bestGain,
		partition: midpoint(u[order[cut]], u[order[cut+1]]),
		ok:        true,
	}
}
