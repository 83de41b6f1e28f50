package ccf

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ttomita/ccfs/core/parallel"
	"github.com/ttomita/ccfs/metrics"
	"github.com/ttomita/ccfs/pkg/errors"
	ccfslog "github.com/ttomita/ccfs/pkg/log"
)

// Forest is a fitted canonical correlation forest: the grown trees, the
// resolved options, the input-processing details replayed at inference,
// the class/target encoding, and the out-of-bag error when available.
type Forest struct {
	Trees []*Tree
	Opts  Options

	Details    *ProcessDetails
	Regression bool

	// NumOutputs is the width of the encoded target matrix (class count
	// for classification).
	NumOutputs int

	// ClassValues holds the original label values when the forest was
	// fitted from a label vector; predictions map back through it.
	ClassValues []float64

	// TaskIDs holds the start column of each class block; empty means a
	// single task.
	TaskIDs []int

	// MuY and StdY un-standardize regression outputs.
	MuY  []float64
	StdY []float64

	// OOBError is the out-of-bag error: one element (fractional
	// misclassification) for classification, one per output (MSE) for
	// regression. Nil when bagging was off or trees were discarded.
	OOBError []float64
}

// growForest is the forest driver: it processes inputs, encodes targets,
// grows the trees (in parallel when configured), and reduces the
// out-of-bag error. When xTest is non-nil the per-tree test predictions
// are accumulated during growth, which permits discarding trees when
// KeepTrees is off; the accumulated mean emission is returned alongside
// the forest.
func growForest(X *mat.Dense, Y *mat.Dense, isOrdinal []bool, regression bool, opts Options, xTest *mat.Dense) (*Forest, *mat.Dense, error) {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return nil, nil, errors.NewModelError("growForest", "empty data", errors.ErrEmptyData)
	}
	yRows, _ := Y.Dims()
	if yRows != n {
		return nil, nil, errors.NewDimensionError("growForest", n, yRows, 0)
	}

	opts.fillDefaults(d, regression)
	if err := opts.validate(regression); err != nil {
		return nil, nil, err
	}

	xProc, details, err := ProcessInputData(X, isOrdinal, opts.MissingValuesMethod == MissingMean)
	if err != nil {
		return nil, nil, err
	}

	f := &Forest{
		Opts:       opts,
		Details:    details,
		Regression: regression,
		TaskIDs:    append([]int(nil), opts.TaskIDs...),
	}

	var yEnc *mat.Dense
	if regression {
		yEnc = f.standardizeTargets(Y)
	} else {
		yEnc = f.encodeClasses(Y)
		if massiveColumns(yEnc, seqRows(n)) < 2 {
			errors.Warn(errors.NewDegenerateDataWarning("growForest", "only one class present in Y"))
		}
	}
	_, f.NumOutputs = yEnc.Dims()

	var xTestProc *mat.Dense
	if xTest != nil {
		xTestProc, err = details.Transform(xTest)
		if err != nil {
			return nil, nil, err
		}
	}

	slog.Debug("growing forest",
		"trees", opts.NumTrees,
		"rows", n,
		"features", d,
		"regression", regression)

	numTrees := opts.NumTrees
	trees := make([]*Tree, numTrees)
	errs := make([]error, numTrees)

	var testMu sync.Mutex
	var testSum *mat.Dense
	if xTestProc != nil {
		tn, _ := xTestProc.Dims()
		testSum = mat.NewDense(tn, f.NumOutputs, nil)
	}

	growOne := func(t int) {
		errs[t] = errors.SafeExecute("growTree", func() error {
			tree, err := f.growTree(xProc, yEnc, t)
			if err != nil {
				return err
			}
			if xTestProc != nil {
				pred := f.treePredict(tree, xTestProc)
				testMu.Lock()
				testSum.Add(testSum, pred)
				testMu.Unlock()
			}
			if opts.KeepTrees {
				trees[t] = tree
			}
			return nil
		})
	}

	if opts.UseParallel {
		parallel.For(numTrees, growOne)
	} else {
		for t := 0; t < numTrees; t++ {
			growOne(t)
		}
	}

	for _, err := range errs {
		if err != nil {
			slog.Error("forest build aborted", ccfslog.ErrAttr(err))
			return nil, nil, err
		}
	}

	if opts.KeepTrees {
		f.Trees = trees
		if opts.BagTrees {
			f.OOBError = f.computeOOBError(Y, yEnc)
		}
	}

	var testPred *mat.Dense
	if testSum != nil {
		testSum.Scale(1/float64(numTrees), testSum)
		testPred = testSum
		if regression {
			testPred = f.unstandardize(testPred)
		}
	}
	return f, testPred, nil
}

// growTree is the per-tree driver: missing-value randomisation, bagging,
// tree-level rotation, growth, and out-of-bag predictions. Every
// stochastic choice draws from a tree-local RNG seeded from the forest
// seed plus the tree index.
func (f *Forest) growTree(X *mat.Dense, yEnc *mat.Dense, treeIndex int) (*Tree, error) {
	opts := &f.Opts
	rng := rand.New(rand.NewSource(opts.Seed + int64(treeIndex)))
	n, d := X.Dims()
	_, k := yEnc.Dims()

	xTree := X
	if opts.MissingValuesMethod == MissingRandom {
		xTree = fillMissingRandom(X, rng)
	}

	var inBag, oob []int
	if opts.BagTrees {
		seen := make([]bool, n)
		inBag = make([]int, n)
		for i := range inBag {
			r := rng.Intn(n)
			inBag[i] = r
			seen[r] = true
		}
		for r := 0; r < n; r++ {
			if !seen[r] {
				oob = append(oob, r)
			}
		}
	} else {
		inBag = seqRows(n)
	}

	fg := f.Details.FeatureGroups
	var xGrow *mat.Dense
	var rotation [][]float64
	var rotationMu []float64
	if opts.TreeRotation != RotationNone {
		rotation, rotationMu = fitTreeRotation(xTree, yEnc, inBag, opts, f.Regression, rng)
	}
	if rotation != nil {
		xGrow = applyRotation(xTree, inBag, rotation, rotationMu)
		// the rotation mixes features; grouping no longer applies
		fg = seqRows(d)
	} else {
		xGrow = gather(xTree, inBag, allCols(d))
	}
	yGrow := gather(yEnc, inBag, allCols(k))

	g := &grower{
		X:          xGrow,
		Y:          yGrow,
		opts:       opts,
		rng:        rng,
		regression: f.Regression,
		numOutputs: k,
	}
	root, err := g.grow(seqRows(len(inBag)), fg, 1, nil)
	if err != nil {
		return nil, err
	}

	tree := &Tree{Root: root, Rotation: rotation, RotationMu: rotationMu}

	if opts.BagTrees && len(oob) > 0 {
		oobX := gather(xTree, oob, allCols(d))
		pred := f.treePredict(tree, oobX)
		tree.OOBIndices = oob
		tree.OOBPredictions = denseToRows(pred)
	}
	return tree, nil
}

// treePredict traverses one tree with an already-processed matrix and
// returns the n×K emission matrix.
func (f *Forest) treePredict(t *Tree, X *mat.Dense) *mat.Dense {
	n, _ := X.Dims()
	xr := X
	if t.Rotation != nil {
		xr = applyRotation(X, seqRows(n), t.Rotation, t.RotationMu)
	}

	out := mat.NewDense(n, f.NumOutputs, nil)
	for i := 0; i < n; i++ {
		node := t.Root
		for !node.Leaf {
			var u float64
			for j, c := range node.InCols {
				u += xr.At(i, c) * node.Projection[j]
			}
			if u <= node.Partition {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		out.SetRow(i, f.leafEmission(node))
	}
	return out
}

// leafEmission converts a leaf into its output row: the regression mean,
// per-column class proportions under separate prediction, or a one-hot
// per task block otherwise.
func (f *Forest) leafEmission(leaf *Node) []float64 {
	if f.Regression {
		return leaf.Mean
	}

	out := make([]float64, f.NumOutputs)
	if f.Opts.SepPred {
		var total float64
		for _, c := range leaf.TrainingCounts {
			total += c
		}
		for j, c := range leaf.TrainingCounts {
			out[j] = safeDivide(c, total)
		}
		return out
	}

	for _, task := range f.tasks() {
		lo, hi := task[0], task[1]
		pick := -1
		if leaf.Label >= lo && leaf.Label < hi {
			pick = leaf.Label
		} else {
			best := math.Inf(-1)
			for c := lo; c < hi; c++ {
				if leaf.TrainingCounts[c] > best {
					best = leaf.TrainingCounts[c]
					pick = c
				}
			}
		}
		if pick >= 0 {
			out[pick] = 1
		}
	}
	return out
}

// tasks returns the class blocks as [lo, hi) pairs.
func (f *Forest) tasks() [][2]int {
	if len(f.TaskIDs) == 0 {
		return [][2]int{{0, f.NumOutputs}}
	}
	var out [][2]int
	for i, lo := range f.TaskIDs {
		hi := f.NumOutputs
		if i+1 < len(f.TaskIDs) {
			hi = f.TaskIDs[i+1]
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// predictProba averages the tree emissions over an already-processed
// matrix.
func (f *Forest) predictProba(X *mat.Dense) (*mat.Dense, error) {
	if len(f.Trees) == 0 {
		return nil, errors.NewModelError("predictProba", "forest has no retained trees", nil)
	}
	n, _ := X.Dims()
	sum := mat.NewDense(n, f.NumOutputs, nil)
	for _, t := range f.Trees {
		sum.Add(sum, f.treePredict(t, X))
	}
	sum.Scale(1/float64(len(f.Trees)), sum)
	return sum, nil
}

// predictClasses argmaxes the mean emission within each task block, first
// index winning ties. With a label-vector fit the output is the original
// label value; otherwise it is the global class column index. Under
// separate prediction each column is thresholded at 0.5 independently.
func (f *Forest) predictClasses(X *mat.Dense) (*mat.Dense, error) {
	proba, err := f.predictProba(X)
	if err != nil {
		return nil, err
	}
	n, _ := proba.Dims()

	if f.Opts.SepPred {
		out := mat.NewDense(n, f.NumOutputs, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < f.NumOutputs; j++ {
				if proba.At(i, j) > 0.5 {
					out.Set(i, j, 1)
				}
			}
		}
		return out, nil
	}

	taskBlocks := f.tasks()
	out := mat.NewDense(n, len(taskBlocks), nil)
	for i := 0; i < n; i++ {
		for ti, task := range taskBlocks {
			pick := task[0]
			best := math.Inf(-1)
			for c := task[0]; c < task[1]; c++ {
				if proba.At(i, c) > best {
					best = proba.At(i, c)
					pick = c
				}
			}
			if f.ClassValues != nil {
				out.Set(i, ti, f.ClassValues[pick])
			} else {
				out.Set(i, ti, float64(pick))
			}
		}
	}
	return out, nil
}

// predictRegression averages tree means and un-standardizes them.
func (f *Forest) predictRegression(X *mat.Dense) (*mat.Dense, error) {
	mean, err := f.predictProba(X)
	if err != nil {
		return nil, err
	}
	return f.unstandardize(mean), nil
}

// unstandardize maps standardized predictions back to the target scale.
func (f *Forest) unstandardize(p *mat.Dense) *mat.Dense {
	n, k := p.Dims()
	out := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			out.Set(i, j, p.At(i, j)*f.StdY[j]+f.MuY[j])
		}
	}
	return out
}

// computeOOBError reduces the per-tree out-of-bag predictions into the
// forest out-of-bag error: metrics.MisclassificationRate over per-task
// argmaxes for classification, metrics.ColumnMSE on the un-standardized
// predictions for regression. Returns nil when no row was ever out of bag.
func (f *Forest) computeOOBError(yRaw *mat.Dense, yEnc *mat.Dense) []float64 {
	n, _ := yEnc.Dims()
	sums := mat.NewDense(n, f.NumOutputs, nil)
	hits := make([]int, n)

	for _, t := range f.Trees {
		for i, r := range t.OOBIndices {
			for j := 0; j < f.NumOutputs; j++ {
				sums.Set(r, j, sums.At(r, j)+t.OOBPredictions[i][j])
			}
			hits[r]++
		}
	}

	covered := 0
	for _, h := range hits {
		if h > 0 {
			covered++
		}
	}
	if covered == 0 {
		return nil
	}

	if f.Regression {
		yTrue := mat.NewDense(covered, f.NumOutputs, nil)
		yPred := mat.NewDense(covered, f.NumOutputs, nil)
		at := 0
		for r := 0; r < n; r++ {
			if hits[r] == 0 {
				continue
			}
			for j := 0; j < f.NumOutputs; j++ {
				yTrue.Set(at, j, yRaw.At(r, j))
				yPred.Set(at, j, sums.At(r, j)/float64(hits[r])*f.StdY[j]+f.MuY[j])
			}
			at++
		}
		mse, err := metrics.ColumnMSE(yTrue, yPred)
		if err != nil {
			return nil
		}
		return mse
	}

	// one label pair per covered row and task
	var trueLabels, predLabels []float64
	for r := 0; r < n; r++ {
		if hits[r] == 0 {
			continue
		}
		for _, task := range f.tasks() {
			predC, trueC := task[0], task[0]
			bestP, bestT := math.Inf(-1), math.Inf(-1)
			for c := task[0]; c < task[1]; c++ {
				if sums.At(r, c) > bestP {
					bestP = sums.At(r, c)
					predC = c
				}
				if yEnc.At(r, c) > bestT {
					bestT = yEnc.At(r, c)
					trueC = c
				}
			}
			trueLabels = append(trueLabels, float64(trueC))
			predLabels = append(predLabels, float64(predC))
		}
	}
	rate, err := metrics.MisclassificationRate(
		mat.NewDense(len(trueLabels), 1, trueLabels),
		mat.NewDense(len(predLabels), 1, predLabels))
	if err != nil {
		return nil
	}
	return []float64{rate}
}

// encodeClasses one-hot encodes a label vector, or passes through an
// already-encoded class matrix.
func (f *Forest) encodeClasses(Y *mat.Dense) *mat.Dense {
	n, k := Y.Dims()
	if k > 1 {
		return mat.DenseCopyOf(Y)
	}

	seen := map[float64]bool{}
	for i := 0; i < n; i++ {
		seen[Y.At(i, 0)] = true
	}
	classes := make([]float64, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Float64s(classes)
	f.ClassValues = classes

	idx := make(map[float64]int, len(classes))
	for i, v := range classes {
		idx[v] = i
	}
	out := mat.NewDense(n, len(classes), nil)
	for i := 0; i < n; i++ {
		out.Set(i, idx[Y.At(i, 0)], 1)
	}
	return out
}

// standardizeTargets standardizes Y and records (MuY, StdY); a zero
// standard deviation is replaced by 1.
func (f *Forest) standardizeTargets(Y *mat.Dense) *mat.Dense {
	n, k := Y.Dims()
	f.MuY = make([]float64, k)
	f.StdY = make([]float64, k)
	col := make([]float64, n)
	for j := 0; j < k; j++ {
		mat.Col(col, j, Y)
		f.MuY[j] = stat.Mean(col, nil)
		f.StdY[j] = stat.PopStdDev(col, nil)
		if f.StdY[j] < 1e-8 {
			f.StdY[j] = 1
		}
	}

	out := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			out.Set(i, j, (Y.At(i, j)-f.MuY[j])/f.StdY[j])
		}
	}
	return out
}

// fillMissingRandom substitutes each NaN with a draw from the column's
// empirical distribution. Returns X unchanged when nothing is missing.
func fillMissingRandom(X *mat.Dense, rng *rand.Rand) *mat.Dense {
	n, d := X.Dims()
	var out *mat.Dense
	for j := 0; j < d; j++ {
		var present []float64
		missing := false
		for i := 0; i < n; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) {
				missing = true
			} else {
				present = append(present, v)
			}
		}
		if !missing || len(present) == 0 {
			continue
		}
		if out == nil {
			out = mat.DenseCopyOf(X)
		}
		for i := 0; i < n; i++ {
			if math.IsNaN(out.At(i, j)) {
				out.Set(i, j, present[rng.Intn(len(present))])
			}
		}
	}
	if out == nil {
		return X
	}
	return out
}

// seqRows returns 0..n-1.
func seqRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
