package ccf

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ttomita/ccfs/pkg/errors"
)

// Node is one node of a grown tree. Leaf and internal nodes share the
// struct; Leaf tags the variant so the two cannot be confused at the type
// boundary.
type Node struct {
	Leaf bool

	// Internal fields
	InCols     []int
	Projection []float64
	Partition  float64
	Left       *Node
	Right      *Node

	// TrainingCounts holds the per-column sums of Y over the bag rows
	// reaching this node (class counts for classification).
	TrainingCounts []float64

	// Leaf fields: Label for classification, Mean for regression
	// (means of the standardized targets).
	Label int
	Mean  []float64
}

// Tree wraps a grown root with the optional whole-tree rotation and the
// out-of-bag bookkeeping recorded by the tree driver.
type Tree struct {
	Root *Node

	// Rotation and RotationMu hold the tree-level input rotation; nil
	// when no rotation was fitted. Inference centers with RotationMu and
	// multiplies by Rotation before traversal.
	Rotation   [][]float64
	RotationMu []float64

	// OOBIndices and OOBPredictions record the rows left out of the bag
	// and the tree's predictions for them.
	OOBIndices     []int
	OOBPredictions [][]float64
}

// grower holds the per-tree state threaded through the recursive node
// builder. X and Y are tree-local; the recursion passes row-index views.
type grower struct {
	X          *mat.Dense
	Y          *mat.Dense
	opts       *Options
	rng        *rand.Rand
	regression bool
	numOutputs int
}

// grow builds the subtree for the given bag rows. featureGroups maps each
// column of X to its original feature (negative marks a column absent for
// this subtree); path carries the class-proportion vectors of the
// ancestors, newest last.
func (g *grower) grow(rows []int, featureGroups []int, depth int, path [][]float64) (*Node, error) {
	n := len(rows)
	opts := g.opts

	// Early termination.
	minPoints := opts.MinPointsForSplit
	if minPoints < 2 {
		minPoints = 2
	}
	if n < minPoints {
		return g.makeLeaf(rows, path), nil
	}
	if g.yDegenerate(rows) {
		return g.makeLeaf(rows, path), nil
	}
	if opts.MaxDepth >= 0 && depth > opts.MaxDepth {
		return g.makeLeaf(rows, path), nil
	}
	if opts.MaxDepth == MaxDepthStack && depth > stackDepthLimit {
		return nil, errors.NewRecursionDepthError(depth, stackDepthLimit)
	}

	// Feature subsampling with variance-based resampling.
	inCols, featureGroups := g.subsampleFeatures(rows, featureGroups)
	if len(inCols) == 0 {
		return g.makeLeaf(rows, path), nil
	}

	counts := colSums(g.Y, rows)
	childPath := path
	if !g.regression {
		probs := make([]float64, len(counts))
		for j, c := range counts {
			probs[j] = c / float64(n)
		}
		childPath = append(append([][]float64{}, path...), probs)
	}

	// Projection bootstrap.
	projRows := rows
	if opts.ProjBoot {
		bag := make([]int, n)
		for i := range bag {
			bag[i] = rows[g.rng.Intn(n)]
		}
		if g.yDegenerate(bag) || !anyColVaries(g.X, bag, inCols, opts.XVariationTol) {
			if !opts.ContinueProjBootDegenerate {
				return g.makeLeaf(rows, path), nil
			}
			// fall back to the unbagged rows
		} else {
			projRows = bag
		}
	}

	// Two-point special case: a bag with exactly two unique rows gets the
	// maximum-margin hyperplane perpendicular to their difference.
	if opts.projectionsEnabled() {
		if i1, i2, ok := twoUniqueRows(g.X, rows, inCols, opts.XVariationTol); ok {
			return g.growTwoPoint(rows, featureGroups, inCols, rows[i1], rows[i2], counts, depth, childPath, path)
		}
	}

	// Fit projections on the (possibly bootstrapped) bag, then compose
	// with the original-axes policy.
	xBag := gather(g.X, projRows, inCols)
	yBag := gather(g.Y, projRows, g.allOutputCols())
	P, err := fitProjections(xBag, yBag, opts, g.rng)
	if err != nil {
		return nil, err
	}
	P, nodeCols := composeOriginalAxes(P, inCols, featureGroups, opts.IncludeOriginalAxes)
	if P == nil {
		return g.makeLeaf(rows, path), nil
	}
	if !allFinite(P) {
		return nil, errors.NewInvariantError("grow", "projection matrix contains non-finite entries")
	}

	// Project the full (unbagged) node rows and drop directions without
	// variation.
	U := g.projectRows(rows, nodeCols, P)
	kept := keepVaryingDirections(U, opts.XVariationTol)
	if len(kept) == 0 {
		return g.makeLeaf(rows, path), nil
	}
	keptU := make([][]float64, len(kept))
	for i, d := range kept {
		keptU[i] = U[d]
	}

	best := evaluateSplits(keptU, g.Y, rows, g.numOutputs, opts, g.rng)
	if best.dir < 0 || best.gain < 0 {
		return g.makeLeaf(rows, path), nil
	}

	dir := kept[best.dir]
	projection := make([]float64, len(nodeCols))
	for i := range nodeCols {
		projection[i] = P.At(i, dir)
	}
	partition := best.partition
	if math.IsNaN(partition) || math.IsInf(partition, 0) {
		return nil, errors.NewInvariantError("grow", "non-finite partition point")
	}

	leftRows, rightRows := partitionRows(rows, U[dir], partition)
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return nil, errors.NewInvariantError("grow", "proposed partition empties a child")
	}

	left, err := g.grow(leftRows, featureGroups, depth+1, childPath)
	if err != nil {
		return nil, err
	}
	right, err := g.grow(rightRows, featureGroups, depth+1, childPath)
	if err != nil {
		return nil, err
	}

	return &Node{
		InCols:         nodeCols,
		Projection:     projection,
		Partition:      partition,
		Left:           left,
		Right:          right,
		TrainingCounts: counts,
	}, nil
}

// growTwoPoint builds the two-unique-rows fallback: the split direction is
// the vector between the two unique rows restricted to inCols, with the
// partition point equidistant along that normal.
func (g *grower) growTwoPoint(rows []int, featureGroups []int, inCols []int, r1, r2 int, counts []float64, depth int, childPath, path [][]float64) (*Node, error) {
	d := len(inCols)
	w := make([]float64, d)
	norm := 0.0
	for i, c := range inCols {
		w[i] = g.X.At(r2, c) - g.X.At(r1, c)
		norm += w[i] * w[i]
	}
	norm = math.Sqrt(norm)
	if norm <= 0 {
		return g.makeLeaf(rows, path), nil
	}
	for i := range w {
		w[i] /= norm
	}

	u := make([]float64, len(rows))
	for i, r := range rows {
		var s float64
		for j, c := range inCols {
			s += g.X.At(r, c) * w[j]
		}
		u[i] = s
	}
	u1, u2 := 0.0, 0.0
	for j, c := range inCols {
		u1 += g.X.At(r1, c) * w[j]
		u2 += g.X.At(r2, c) * w[j]
	}
	lo, hi := u1, u2
	if lo > hi {
		lo, hi = hi, lo
	}
	partition := midpoint(lo, hi)

	leftRows, rightRows := partitionRows(rows, u, partition)
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return nil, errors.NewInvariantError("growTwoPoint", "proposed partition empties a child")
	}

	left, err := g.grow(leftRows, featureGroups, depth+1, childPath)
	if err != nil {
		return nil, err
	}
	right, err := g.grow(rightRows, featureGroups, depth+1, childPath)
	if err != nil {
		return nil, err
	}

	return &Node{
		InCols:         append([]int(nil), inCols...),
		Projection:     w,
		Partition:      partition,
		Left:           left,
		Right:          right,
		TrainingCounts: counts,
	}, nil
}

// yDegenerate reports whether the targets over rows cannot support a
// split: fewer than two classes with non-negligible mass for
// classification, or no output variation for regression.
func (g *grower) yDegenerate(rows []int) bool {
	if g.regression {
		for j := 0; j < g.numOutputs; j++ {
			if colVaries(g.Y, rows, j, 1e-12) {
				return false
			}
		}
		return true
	}
	return massiveColumns(g.Y, rows) < 2
}

// subsampleFeatures draws lambda distinct feature groups without
// replacement, drops columns without variation over rows, and resamples
// replacement groups from the remaining pool when a chosen group loses all
// of its columns. Invalidated groups are marked absent for the subtree via
// a copy-on-write of featureGroups.
func (g *grower) subsampleFeatures(rows []int, featureGroups []int) ([]int, []int) {
	groupCols := make(map[int][]int)
	for c, grp := range featureGroups {
		if grp >= 0 {
			groupCols[grp] = append(groupCols[grp], c)
		}
	}
	selectable := make([]int, 0, len(groupCols))
	for grp := range groupCols {
		selectable = append(selectable, grp)
	}
	sort.Ints(selectable)

	lambda := g.opts.LambdaProjBoot
	if lambda > len(selectable) {
		lambda = len(selectable)
	}
	if lambda == 0 {
		return nil, featureGroups
	}

	// Partial Fisher-Yates: the first lambda entries are the chosen
	// groups, the rest form the replacement pool.
	perm := append([]int(nil), selectable...)
	for i := 0; i < lambda; i++ {
		j := i + g.rng.Intn(len(perm)-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	chosen := perm[:lambda]
	pool := perm[lambda:]

	fg := featureGroups
	fgOwned := false
	markAbsent := func(grp int) {
		if !fgOwned {
			fg = append([]int(nil), fg...)
			fgOwned = true
		}
		for _, c := range groupCols[grp] {
			fg[c] = -1
		}
	}

	var inCols []int
	active := append([]int(nil), chosen...)
	for i := 0; i < len(active); i++ {
		grp := active[i]
		varying := 0
		for _, c := range groupCols[grp] {
			if colVaries(g.X, rows, c, g.opts.XVariationTol) {
				varying++
			}
		}
		if varying > 0 {
			continue
		}
		// The group has no varying column here: mark it absent for the
		// subtree and try to draw a replacement.
		markAbsent(grp)
		active = append(active[:i], active[i+1:]...)
		i--
		if len(pool) > 0 {
			j := g.rng.Intn(len(pool))
			replacement := pool[j]
			pool = append(pool[:j], pool[j+1:]...)
			active = append(active, replacement)
		}
	}

	for _, grp := range active {
		for _, c := range groupCols[grp] {
			if colVaries(g.X, rows, c, g.opts.XVariationTol) {
				inCols = append(inCols, c)
			}
		}
	}
	sort.Ints(inCols)
	return inCols, fg
}

// allOutputCols returns 0..numOutputs-1.
func (g *grower) allOutputCols() []int {
	cols := make([]int, g.numOutputs)
	for i := range cols {
		cols[i] = i
	}
	return cols
}

// projectRows computes U[dir][i] = X[rows[i], nodeCols] . P[:, dir].
func (g *grower) projectRows(rows []int, nodeCols []int, P *mat.Dense) [][]float64 {
	_, p := P.Dims()
	U := make([][]float64, p)
	for dir := 0; dir < p; dir++ {
		u := make([]float64, len(rows))
		for i, r := range rows {
			var s float64
			for j, c := range nodeCols {
				s += g.X.At(r, c) * P.At(j, dir)
			}
			u[i] = s
		}
		U[dir] = u
	}
	return U
}

// keepVaryingDirections returns the indices of projected directions whose
// values vary by more than tol.
func keepVaryingDirections(U [][]float64, tol float64) []int {
	var kept []int
	for d, u := range U {
		if floats.Max(u)-floats.Min(u) > tol {
			kept = append(kept, d)
		}
	}
	return kept
}

// partitionRows splits rows by u <= partition.
func partitionRows(rows []int, u []float64, partition float64) ([]int, []int) {
	var left, right []int
	for i, r := range rows {
		if u[i] <= partition {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

// makeLeaf finalizes rows into a leaf. Classification leaves pick the
// majority class, consulting the ancestral class proportions newest-first
// on ties and finally an RNG perturbation; regression leaves store the
// per-output mean of the standardized targets.
func (g *grower) makeLeaf(rows []int, path [][]float64) *Node {
	counts := colSums(g.Y, rows)
	leaf := &Node{
		Leaf:           true,
		TrainingCounts: counts,
	}

	if g.regression {
		mean := make([]float64, len(counts))
		for j, s := range counts {
			mean[j] = s / float64(len(rows))
		}
		leaf.Mean = mean
		return leaf
	}

	leaf.Label = g.leafLabel(counts, path)
	return leaf
}

// leafLabel picks the class with maximum count. Ties consult the ancestral
// proportions from newest to oldest, each round keeping only the tied
// classes with the largest historical proportion; a remaining tie is
// broken with a uniform RNG perturbation.
func (g *grower) leafLabel(counts []float64, path [][]float64) int {
	tied := argmaxSet(counts)
	if len(tied) == 1 {
		return tied[0]
	}

	for h := len(path) - 1; h >= 0 && len(tied) > 1; h-- {
		probs := path[h]
		best := math.Inf(-1)
		var next []int
		for _, c := range tied {
			v := counts[c] + probs[c]/1e9
			switch {
			case v > best && !approxEqual(v, best):
				best = v
				next = next[:0]
				next = append(next, c)
			case approxEqual(v, best):
				next = append(next, c)
			}
		}
		tied = next
	}

	if len(tied) == 1 {
		return tied[0]
	}

	best := math.Inf(-1)
	pick := tied[0]
	for _, c := range tied {
		v := counts[c] + g.rng.Float64()/1e9
		if v > best {
			best = v
			pick = c
		}
	}
	return pick
}

// argmaxSet returns all indices attaining the maximum value.
func argmaxSet(v []float64) []int {
	best := math.Inf(-1)
	var out []int
	for i, x := range v {
		switch {
		case x > best:
			best = x
			out = out[:0]
			out = append(out, i)
		case x == best:
			out = append(out, i)
		}
	}
	return out
}

// CountLeaves returns the number of leaves under n.
func (n *Node) CountLeaves() int {
	if n == nil {
		return 0
	}
	if n.Leaf {
		return 1
	}
	return n.Left.CountLeaves() + n.Right.CountLeaves()
}

// BagRowCount sums the leaf counts under n; for single-task classification
// trees this equals the number of bag rows used to grow the subtree (with
// several task blocks each row is counted once per task).
func (n *Node) BagRowCount() float64 {
	if n == nil {
		return 0
	}
	if n.Leaf {
		var s float64
		for _, c := range n.TrainingCounts {
			s += c
		}
		return s
	}
	return n.Left.BagRowCount() + n.Right.BagRowCount()
}
