package ccf

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ttomita/ccfs/pkg/errors"
	"github.com/ttomita/ccfs/preprocessing"
)

// ProcessDetails captures everything needed to replay the training-time
// input transformation on a test matrix: per-expanded-column moments, the
// grouping of expanded columns back to original features, and the category
// lists of categorical columns.
type ProcessDetails struct {
	// Mu and Sigma are the NaN-ignoring mean and standard deviation of
	// each expanded column (Sigma 1 for one-hot and constant columns).
	Mu    []float64
	Sigma []float64

	// FeatureGroups maps each expanded column to its original feature.
	FeatureGroups []int

	// IsOrdinal flags each original column; categorical columns expand
	// to one-hot blocks.
	IsOrdinal []bool

	// Categories lists the sorted distinct values of each categorical
	// original column (nil for ordinal columns).
	Categories [][]float64

	// NumOriginal is the original column count, NumExpanded the column
	// count after categorical expansion.
	NumOriginal int
	NumExpanded int

	// NaNToMean records whether missing ordinal entries were replaced by
	// the column mean at processing time.
	NaNToMean bool
}

// ProcessInputData expands categorical columns to one-hot blocks,
// standardizes ordinal columns with NaN-ignoring moments, and returns the
// processed matrix together with the details needed to transform test
// data. A nil isOrdinal treats every column as ordinal.
func ProcessInputData(X *mat.Dense, isOrdinal []bool, nanToMean bool) (*mat.Dense, *ProcessDetails, error) {
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return nil, nil, errors.NewModelError("ProcessInputData", "empty data", errors.ErrEmptyData)
	}
	if isOrdinal == nil {
		isOrdinal = make([]bool, d)
		for i := range isOrdinal {
			isOrdinal[i] = true
		}
	}
	if len(isOrdinal) != d {
		return nil, nil, errors.NewDimensionError("ProcessInputData", d, len(isOrdinal), 1)
	}

	details := &ProcessDetails{
		IsOrdinal:   append([]bool(nil), isOrdinal...),
		Categories:  make([][]float64, d),
		NumOriginal: d,
		NaNToMean:   nanToMean,
	}

	for c := 0; c < d; c++ {
		if !isOrdinal[c] {
			seen := map[float64]bool{}
			for i := 0; i < n; i++ {
				v := X.At(i, c)
				if !math.IsNaN(v) {
					seen[v] = true
				}
			}
			cats := make([]float64, 0, len(seen))
			for v := range seen {
				cats = append(cats, v)
			}
			sort.Float64s(cats)
			details.Categories[c] = cats
			details.NumExpanded += len(cats)
		} else {
			details.NumExpanded++
		}
	}

	details.Mu = make([]float64, details.NumExpanded)
	details.Sigma = make([]float64, details.NumExpanded)
	details.FeatureGroups = make([]int, details.NumExpanded)

	// Ordinal columns go through the NaN-aware scaler as one block; its
	// moments are recorded per expanded column for test-time replay.
	var ordCols []int
	for c := 0; c < d; c++ {
		if isOrdinal[c] {
			ordCols = append(ordCols, c)
		}
	}
	var ordScaled *mat.Dense
	scaler := preprocessing.NewStandardScaler()
	if len(ordCols) > 0 {
		var err error
		ordScaled, err = scaler.FitTransform(gather(X, seqRows(n), ordCols))
		if err != nil {
			return nil, nil, err
		}
	}

	out := mat.NewDense(n, details.NumExpanded, nil)
	at := 0
	ordAt := 0
	for c := 0; c < d; c++ {
		if isOrdinal[c] {
			details.Mu[at] = scaler.Mean[ordAt]
			details.Sigma[at] = scaler.Scale[ordAt]
			details.FeatureGroups[at] = c
			for i := 0; i < n; i++ {
				v := ordScaled.At(i, ordAt)
				if math.IsNaN(v) && nanToMean {
					v = 0
				}
				out.Set(i, at, v)
			}
			at++
			ordAt++
			continue
		}

		for _, cat := range details.Categories[c] {
			details.Mu[at] = 0
			details.Sigma[at] = 1
			details.FeatureGroups[at] = c
			for i := 0; i < n; i++ {
				if X.At(i, c) == cat {
					out.Set(i, at, 1)
				}
			}
			at++
		}
	}

	return out, details, nil
}

// Transform replays the training-time processing on a test matrix.
// Unknown categories map to an all-zero one-hot block; missing ordinal
// entries become the column mean.
func (p *ProcessDetails) Transform(X *mat.Dense) (*mat.Dense, error) {
	n, d := X.Dims()
	if d != p.NumOriginal {
		return nil, errors.NewDimensionError("ProcessDetails.Transform", p.NumOriginal, d, 1)
	}

	out := mat.NewDense(n, p.NumExpanded, nil)
	at := 0
	for c := 0; c < d; c++ {
		if p.IsOrdinal[c] {
			for i := 0; i < n; i++ {
				v := X.At(i, c)
				if math.IsNaN(v) {
					out.Set(i, at, 0)
					continue
				}
				out.Set(i, at, (v-p.Mu[at])/p.Sigma[at])
			}
			at++
			continue
		}
		for _, cat := range p.Categories[c] {
			for i := 0; i < n; i++ {
				if X.At(i, c) == cat {
					out.Set(i, at, 1)
				}
			}
			at++
		}
	}
	return out, nil
}

