package ccf

import (
	"math"

	"github.com/ttomita/ccfs/pkg/errors"
)

// ProjectionKind identifies a family of candidate split directions fitted
// at each node.
type ProjectionKind string

const (
	// ProjectionCCA uses canonical correlation between the node features
	// and the class encoding.
	ProjectionCCA ProjectionKind = "CCA"
	// ProjectionPCA uses principal directions of the node features.
	ProjectionPCA ProjectionKind = "PCA"
	// ProjectionCCAClasswise fits one CCA direction per class column.
	ProjectionCCAClasswise ProjectionKind = "CCAclasswise"
	// ProjectionOriginal uses the unrotated feature axes.
	ProjectionOriginal ProjectionKind = "Original"
	// ProjectionRandom uses random orthonormal directions.
	ProjectionRandom ProjectionKind = "Random"
)

// projectionKinds lists every recognised kind; the forest driver completes
// the options map so each key carries an explicit boolean.
var projectionKinds = []ProjectionKind{
	ProjectionCCA,
	ProjectionPCA,
	ProjectionCCAClasswise,
	ProjectionOriginal,
	ProjectionRandom,
}

// SplitCriterion selects the purity metric used by the split search.
type SplitCriterion string

const (
	CriterionGini SplitCriterion = "gini"
	CriterionInfo SplitCriterion = "info"
	CriterionMSE  SplitCriterion = "mse"
)

// TieBreak selects how equal-gain directions are resolved.
type TieBreak string

const (
	TieBreakRand  TieBreak = "rand"
	TieBreakFirst TieBreak = "first"
)

// OriginalAxes controls whether untransformed feature axes are appended to
// the fitted projection directions.
type OriginalAxes string

const (
	// OriginalAxesOff uses only the fitted projections.
	OriginalAxesOff OriginalAxes = "off"
	// OriginalAxesSampled appends identity axes over the node's sampled
	// columns.
	OriginalAxesSampled OriginalAxes = "sampled"
	// OriginalAxesAll expands the projections back to the full column
	// space and appends identity axes over every still-active column.
	OriginalAxesAll OriginalAxes = "all"
)

// RotationKind selects the whole-tree input rotation.
type RotationKind string

const (
	RotationNone   RotationKind = "none"
	RotationRandom RotationKind = "random"
	RotationPCA    RotationKind = "pca"
	RotationForest RotationKind = "rotationForest"
)

// MissingMethod selects how NaN feature entries are resolved.
type MissingMethod string

const (
	// MissingMean substitutes the column mean once, before training.
	MissingMean MissingMethod = "mean"
	// MissingRandom substitutes a draw from the column's empirical
	// distribution, independently per tree.
	MissingRandom MissingMethod = "random"
)

// MaxDepthStack grows trees until the data runs out, subject to the
// recursion guard.
const MaxDepthStack = -1

// stackDepthLimit is the hard recursion guard applied in stack mode.
const stackDepthLimit = 490

// Options holds every recognised training option.
type Options struct {
	// NumTrees is the ensemble size.
	NumTrees int `json:"num_trees"`

	// MinPointsForSplit is the smallest node size eligible for splitting.
	MinPointsForSplit int `json:"min_points_for_split"`

	// MaxDepth caps tree depth; MaxDepthStack means unbounded growth
	// behind the recursion guard.
	MaxDepth int `json:"max_depth"`

	// LambdaProjBoot is the number of feature groups subsampled per node.
	// Zero selects ceil(log2(D)+1).
	LambdaProjBoot int `json:"lambda_proj_boot"`

	// ProjBoot resamples rows with replacement before fitting projections.
	ProjBoot bool `json:"proj_boot"`

	// ContinueProjBootDegenerate falls back to the original rows when the
	// projection bootstrap is degenerate instead of making a leaf.
	ContinueProjBootDegenerate bool `json:"continue_proj_boot_degenerate"`

	// XVariationTol is the threshold below which a column counts as
	// constant.
	XVariationTol float64 `json:"x_variation_tol"`

	// SplitCriterion is gini, info, or mse.
	SplitCriterion SplitCriterion `json:"split_criterion"`

	// Projections enables projection kinds. A nil map enables CCA only.
	Projections map[ProjectionKind]bool `json:"projections"`

	// IncludeOriginalAxes is off, sampled, or all.
	IncludeOriginalAxes OriginalAxes `json:"include_original_axes"`

	// DirIfEqual is rand or first.
	DirIfEqual TieBreak `json:"dir_if_equal"`

	// BagTrees grows each tree on a bootstrap sample.
	BagTrees bool `json:"bag_trees"`

	// TreeRotation applies a whole-tree input rotation.
	TreeRotation RotationKind `json:"tree_rotation"`

	// RotForestBlocks is the number of column blocks for the
	// Rotation-Forest scheme.
	RotForestBlocks int `json:"rot_forest_blocks"`

	// RotForestRowFraction is the bootstrap fraction per block.
	RotForestRowFraction float64 `json:"rot_forest_row_fraction"`

	// RotForestClassLeaveOut is the probability of dropping a class from
	// a block's PCA sample.
	RotForestClassLeaveOut float64 `json:"rot_forest_class_leave_out"`

	// MissingValuesMethod is mean or random.
	MissingValuesMethod MissingMethod `json:"missing_values_method"`

	// SepPred predicts each output column independently instead of
	// argmaxing within task blocks.
	SepPred bool `json:"sep_pred"`

	// TaskIDs holds the start column of each class block for multi-task
	// classification. Empty means a single task spanning all columns.
	TaskIDs []int `json:"task_ids"`

	// UseParallel grows trees on worker goroutines.
	UseParallel bool `json:"use_parallel"`

	// KeepTrees retains grown trees on the forest. When false and test
	// data is supplied, each tree is discarded after its test predictions
	// are recorded.
	KeepTrees bool `json:"keep_trees"`

	// Seed is the forest-level RNG seed; tree t uses Seed+t.
	Seed int64 `json:"seed"`
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		NumTrees:             100,
		MinPointsForSplit:    2,
		MaxDepth:             MaxDepthStack,
		ProjBoot:             false,
		XVariationTol:        1e-10,
		SplitCriterion:       CriterionGini,
		IncludeOriginalAxes:  OriginalAxesOff,
		DirIfEqual:           TieBreakRand,
		BagTrees:             true,
		TreeRotation:         RotationNone,
		RotForestBlocks:      3,
		RotForestRowFraction: 0.75,
		MissingValuesMethod:  MissingMean,
		UseParallel:          true,
		KeepTrees:            true,
	}
}

// fillDefaults completes zero-valued fields and the projection map so every
// recognised kind carries an explicit boolean.
func (o *Options) fillDefaults(numFeatures int, regression bool) {
	if o.NumTrees <= 0 {
		o.NumTrees = 100
	}
	if o.MinPointsForSplit < 2 {
		o.MinPointsForSplit = 2
	}
	if o.LambdaProjBoot <= 0 {
		o.LambdaProjBoot = int(math.Ceil(math.Log2(float64(numFeatures)) + 1))
		if o.LambdaProjBoot < 1 {
			o.LambdaProjBoot = 1
		}
	}
	if o.XVariationTol <= 0 {
		o.XVariationTol = 1e-10
	}
	if o.SplitCriterion == "" {
		if regression {
			o.SplitCriterion = CriterionMSE
		} else {
			o.SplitCriterion = CriterionGini
		}
	}
	if o.IncludeOriginalAxes == "" {
		o.IncludeOriginalAxes = OriginalAxesOff
	}
	if o.DirIfEqual == "" {
		o.DirIfEqual = TieBreakRand
	}
	if o.TreeRotation == "" {
		o.TreeRotation = RotationNone
	}
	if o.MissingValuesMethod == "" {
		o.MissingValuesMethod = MissingMean
	}
	if o.RotForestBlocks <= 0 {
		o.RotForestBlocks = 3
	}
	if o.RotForestRowFraction <= 0 || o.RotForestRowFraction > 1 {
		o.RotForestRowFraction = 0.75
	}

	completed := make(map[ProjectionKind]bool, len(projectionKinds))
	if o.Projections == nil {
		completed[ProjectionCCA] = true
	}
	for k, v := range o.Projections {
		completed[k] = v
	}
	for _, k := range projectionKinds {
		if _, ok := completed[k]; !ok {
			completed[k] = false
		}
	}
	o.Projections = completed
}

// validate rejects unknown enum values and conflicting combinations before
// any training work starts.
func (o *Options) validate(regression bool) error {
	switch o.SplitCriterion {
	case CriterionGini, CriterionInfo:
		if regression {
			return errors.NewValidationError("split_criterion",
				"classification criterion on a regression fit", string(o.SplitCriterion))
		}
	case CriterionMSE:
		if !regression {
			return errors.NewValidationError("split_criterion",
				"mse requires a regression fit", string(o.SplitCriterion))
		}
	default:
		return errors.NewValidationError("split_criterion", "unknown criterion", string(o.SplitCriterion))
	}

	switch o.DirIfEqual {
	case TieBreakRand, TieBreakFirst:
	default:
		return errors.NewValidationError("dir_if_equal", "unknown tie-break policy", string(o.DirIfEqual))
	}

	switch o.IncludeOriginalAxes {
	case OriginalAxesOff, OriginalAxesSampled, OriginalAxesAll:
	default:
		return errors.NewValidationError("include_original_axes", "unknown mode", string(o.IncludeOriginalAxes))
	}

	switch o.TreeRotation {
	case RotationNone, RotationRandom, RotationPCA, RotationForest:
	default:
		return errors.NewValidationError("tree_rotation", "unknown rotation", string(o.TreeRotation))
	}

	switch o.MissingValuesMethod {
	case MissingMean, MissingRandom:
	default:
		return errors.NewValidationError("missing_values_method", "unknown method", string(o.MissingValuesMethod))
	}

	for k := range o.Projections {
		known := false
		for _, rk := range projectionKinds {
			if k == rk {
				known = true
				break
			}
		}
		if !known {
			return errors.NewValidationError("projections", "unknown projection kind", string(k))
		}
	}

	anyEnabled := false
	for _, v := range o.Projections {
		if v {
			anyEnabled = true
			break
		}
	}
	if !anyEnabled && o.IncludeOriginalAxes == OriginalAxesOff {
		return errors.NewValidationError("projections",
			"no projections enabled and include_original_axes is off", o.Projections)
	}

	if o.MaxDepth < MaxDepthStack {
		return errors.NewValidationError("max_depth", "must be >= 0 or MaxDepthStack", o.MaxDepth)
	}

	for i := 1; i < len(o.TaskIDs); i++ {
		if o.TaskIDs[i] <= o.TaskIDs[i-1] {
			return errors.NewValidationError("task_ids", "must be strictly increasing", o.TaskIDs)
		}
	}

	return nil
}

// projectionsEnabled reports whether any fitted projection kind (anything
// other than the original axes) is on.
func (o *Options) projectionsEnabled() bool {
	for k, v := range o.Projections {
		if v && k != ProjectionOriginal {
			return true
		}
	}
	return false
}
