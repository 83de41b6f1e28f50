package ccf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ttomita/ccfs/core/model"
	"github.com/ttomita/ccfs/metrics"
)

// Option configures a classifier or regressor at construction.
type Option func(*Options)

// WithNumTrees sets the ensemble size.
func WithNumTrees(n int) Option { return func(o *Options) { o.NumTrees = n } }

// WithCriterion sets the split criterion (gini, info, or mse).
func WithCriterion(c string) Option { return func(o *Options) { o.SplitCriterion = SplitCriterion(c) } }

// WithMaxDepth caps the tree depth; MaxDepthStack removes the cap.
func WithMaxDepth(d int) Option { return func(o *Options) { o.MaxDepth = d } }

// WithMinPointsForSplit sets the smallest splittable node size.
func WithMinPointsForSplit(n int) Option { return func(o *Options) { o.MinPointsForSplit = n } }

// WithLambda sets the number of feature groups subsampled per node.
func WithLambda(n int) Option { return func(o *Options) { o.LambdaProjBoot = n } }

// WithProjections enables the given projection kinds.
func WithProjections(kinds ...ProjectionKind) Option {
	return func(o *Options) {
		o.Projections = make(map[ProjectionKind]bool, len(kinds))
		for _, k := range kinds {
			o.Projections[k] = true
		}
	}
}

// WithProjBoot resamples rows before fitting projections at each node.
func WithProjBoot(on bool) Option { return func(o *Options) { o.ProjBoot = on } }

// WithBagging toggles per-tree bootstrap sampling.
func WithBagging(on bool) Option { return func(o *Options) { o.BagTrees = on } }

// WithTreeRotation selects the whole-tree input rotation.
func WithTreeRotation(r RotationKind) Option { return func(o *Options) { o.TreeRotation = r } }

// WithOriginalAxes selects the include-original-axes policy.
func WithOriginalAxes(m OriginalAxes) Option { return func(o *Options) { o.IncludeOriginalAxes = m } }

// WithTieBreak selects the equal-gain direction policy.
func WithTieBreak(t TieBreak) Option { return func(o *Options) { o.DirIfEqual = t } }

// WithMissingValues selects the NaN substitution method.
func WithMissingValues(m MissingMethod) Option { return func(o *Options) { o.MissingValuesMethod = m } }

// WithTaskIDs partitions the class columns into independent tasks.
func WithTaskIDs(ids ...int) Option { return func(o *Options) { o.TaskIDs = ids } }

// WithSepPred predicts each output column independently.
func WithSepPred(on bool) Option { return func(o *Options) { o.SepPred = on } }

// WithParallel toggles parallel tree growth.
func WithParallel(on bool) Option { return func(o *Options) { o.UseParallel = on } }

// WithKeepTrees toggles retaining grown trees on the forest.
func WithKeepTrees(on bool) Option { return func(o *Options) { o.KeepTrees = on } }

// WithSeed sets the forest-level RNG seed.
func WithSeed(s int64) Option { return func(o *Options) { o.Seed = s } }

// Classifier is a canonical correlation forest classifier with a
// scikit-learn style interface.
type Classifier struct {
	model.BaseEstimator

	// Opts are the construction-time options; Fit resolves defaults into
	// Forest.Opts.
	Opts Options

	// Forest holds the fitted ensemble.
	Forest *Forest

	// IsOrdinal flags each input column; nil treats all as ordinal.
	IsOrdinal []bool
}

// NewClassifier creates a classifier with the given options.
func NewClassifier(options ...Option) *Classifier {
	opts := DefaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	return &Classifier{Opts: opts}
}

// SetOrdinal flags which input columns are ordinal; the rest expand to
// one-hot blocks at Fit.
func (c *Classifier) SetOrdinal(isOrdinal []bool) *Classifier {
	c.IsOrdinal = append([]bool(nil), isOrdinal...)
	return c
}

// Fit grows the forest on X and y. y is either an n×1 label vector or an
// n×K one-hot matrix (with task blocks for multi-task problems).
func (c *Classifier) Fit(X, y mat.Matrix) error {
	f, _, err := growForest(toDense(X), toDense(y), c.IsOrdinal, false, c.Opts, nil)
	if err != nil {
		return err
	}
	c.Forest = f
	c.SetFitted()
	return nil
}

// FitPredict grows the forest and returns the mean emission on xTest in
// one pass. With KeepTrees off each tree is discarded after its test
// predictions are recorded, so only the trees currently being grown (one
// per worker under parallel growth) are held in memory.
func (c *Classifier) FitPredict(X, y, xTest mat.Matrix) (mat.Matrix, error) {
	f, pred, err := growForest(toDense(X), toDense(y), c.IsOrdinal, false, c.Opts, toDense(xTest))
	if err != nil {
		return nil, err
	}
	c.Forest = f
	c.SetFitted()
	return pred, nil
}

// Predict returns the predicted class per task block for each row of X.
func (c *Classifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := c.RequireFitted("Classifier", "Predict"); err != nil {
		return nil, err
	}
	xp, err := c.Forest.Details.Transform(toDense(X))
	if err != nil {
		return nil, err
	}
	return c.Forest.predictClasses(xp)
}

// PredictProba returns per-class probabilities for each row of X.
func (c *Classifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.RequireFitted("Classifier", "PredictProba"); err != nil {
		return nil, err
	}
	xp, err := c.Forest.Details.Transform(toDense(X))
	if err != nil {
		return nil, err
	}
	return c.Forest.predictProba(xp)
}

// Score returns the accuracy of Predict against an n×1 label vector.
func (c *Classifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy(y, pred)
}

// OOBError returns the out-of-bag misclassification rate, or false when
// it is unavailable (bagging off or trees discarded).
func (c *Classifier) OOBError() (float64, bool) {
	if c.Forest == nil || len(c.Forest.OOBError) == 0 {
		return 0, false
	}
	return c.Forest.OOBError[0], true
}

// Regressor is a canonical correlation forest regressor.
type Regressor struct {
	model.BaseEstimator

	Opts   Options
	Forest *Forest

	IsOrdinal []bool
}

// NewRegressor creates a regressor with the given options.
func NewRegressor(options ...Option) *Regressor {
	opts := DefaultOptions()
	opts.SplitCriterion = CriterionMSE
	for _, opt := range options {
		opt(&opts)
	}
	return &Regressor{Opts: opts}
}

// SetOrdinal flags which input columns are ordinal.
func (r *Regressor) SetOrdinal(isOrdinal []bool) *Regressor {
	r.IsOrdinal = append([]bool(nil), isOrdinal...)
	return r
}

// Fit grows the forest on X and targets y (n×K, any K ≥ 1).
func (r *Regressor) Fit(X, y mat.Matrix) error {
	f, _, err := growForest(toDense(X), toDense(y), r.IsOrdinal, true, r.Opts, nil)
	if err != nil {
		return err
	}
	r.Forest = f
	r.SetFitted()
	return nil
}

// FitPredict grows the forest and predicts xTest in one pass; see
// Classifier.FitPredict.
func (r *Regressor) FitPredict(X, y, xTest mat.Matrix) (mat.Matrix, error) {
	f, pred, err := growForest(toDense(X), toDense(y), r.IsOrdinal, true, r.Opts, toDense(xTest))
	if err != nil {
		return nil, err
	}
	r.Forest = f
	r.SetFitted()
	return pred, nil
}

// Predict returns the un-standardized mean prediction for each row of X.
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := r.RequireFitted("Regressor", "Predict"); err != nil {
		return nil, err
	}
	xp, err := r.Forest.Details.Transform(toDense(X))
	if err != nil {
		return nil, err
	}
	return r.Forest.predictRegression(xp)
}

// Score returns the coefficient of determination of Predict against the
// targets y.
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(y, pred)
}

// OOBError returns the per-output out-of-bag MSE, or false when
// unavailable.
func (r *Regressor) OOBError() ([]float64, bool) {
	if r.Forest == nil || len(r.Forest.OOBError) == 0 {
		return nil, false
	}
	return r.Forest.OOBError, true
}

// toDense converts any mat.Matrix to a *mat.Dense without copying when it
// already is one.
func toDense(m mat.Matrix) *mat.Dense {
	if m == nil {
		return nil
	}
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}
