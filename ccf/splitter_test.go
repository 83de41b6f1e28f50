package ccf

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func splitOpts(criterion SplitCriterion) *Options {
	return &Options{
		SplitCriterion: criterion,
		XVariationTol:  1e-10,
		DirIfEqual:     TieBreakFirst,
	}
}

func TestGiniImpurity(t *testing.T) {
	if got := giniImpurity([]float64{2, 2}, 4); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("balanced gini = %v, want 0.5", got)
	}
	if got := giniImpurity([]float64{4, 0}, 4); got != 0 {
		t.Errorf("pure gini = %v, want 0", got)
	}
	if got := giniImpurity(nil, 0); got != 0 {
		t.Errorf("empty gini = %v, want 0", got)
	}
}

func TestInfoImpurity(t *testing.T) {
	if got := infoImpurity([]float64{2, 2}, 4); math.Abs(got-1) > 1e-12 {
		t.Errorf("balanced entropy = %v, want 1", got)
	}
	if got := infoImpurity([]float64{4, 0}, 4); got != 0 {
		t.Errorf("pure entropy = %v, want 0 (0 log 0 = 0)", got)
	}
}

func TestEvaluateSplitsSeparable(t *testing.T) {
	// Direction 0 separates the classes perfectly, direction 1 does not.
	U := [][]float64{
		{0, 0.1, 1, 1.1},
		{0, 1, 0, 1},
	}
	Y := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	rows := []int{0, 1, 2, 3}
	rng := rand.New(rand.NewSource(1))

	res := evaluateSplits(U, Y, rows, 2, splitOpts(CriterionGini), rng)
	if res.dir != 0 {
		t.Errorf("winning direction = %d, want 0", res.dir)
	}
	if math.Abs(res.gain-0.5) > 1e-12 {
		t.Errorf("gain = %v, want 0.5", res.gain)
	}
	if !(res.partition > 0.1 && res.partition < 1) {
		t.Errorf("partition = %v, want strictly between 0.1 and 1", res.partition)
	}
}

func TestEvaluateSplitsNoGap(t *testing.T) {
	// All projected values equal: no legal candidate anywhere.
	U := [][]float64{{1, 1, 1, 1}}
	Y := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	rng := rand.New(rand.NewSource(1))

	res := evaluateSplits(U, Y, []int{0, 1, 2, 3}, 2, splitOpts(CriterionGini), rng)
	if res.dir >= 0 {
		t.Errorf("expected no legal split, got direction %d", res.dir)
	}
}

func TestEvaluateSplitsMSE(t *testing.T) {
	// Step function: splitting at the step removes all variance.
	U := [][]float64{{0, 1, 2, 3}}
	Y := mat.NewDense(4, 1, []float64{-1, -1, 1, 1})
	rng := rand.New(rand.NewSource(1))

	res := evaluateSplits(U, Y, []int{0, 1, 2, 3}, 1, splitOpts(CriterionMSE), rng)
	if res.dir != 0 {
		t.Fatalf("expected direction 0, got %d", res.dir)
	}
	// parent variance 1, children variance 0
	if math.Abs(res.gain-1) > 1e-12 {
		t.Errorf("gain = %v, want 1", res.gain)
	}
	if !(res.partition > 1 && res.partition < 2) {
		t.Errorf("partition = %v, want in (1, 2)", res.partition)
	}
}

func TestEvaluateSplitsTieFirst(t *testing.T) {
	// Two identical directions: with the first policy the first must win.
	u := []float64{0, 0, 1, 1}
	U := [][]float64{u, u}
	Y := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	rng := rand.New(rand.NewSource(1))

	res := evaluateSplits(U, Y, []int{0, 1, 2, 3}, 2, splitOpts(CriterionGini), rng)
	if res.dir != 0 {
		t.Errorf("first-policy tie-break picked direction %d, want 0", res.dir)
	}
}

func TestEvaluateSplitsZeroGainStillSplits(t *testing.T) {
	// The only legal candidate has zero gain; it is still a usable split.
	U := [][]float64{{0, 0, 1, 1}}
	Y := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		1, 0,
		0, 1,
	})
	rng := rand.New(rand.NewSource(1))

	res := evaluateSplits(U, Y, []int{0, 1, 2, 3}, 2, splitOpts(CriterionGini), rng)
	if res.dir < 0 {
		t.Fatal("expected a split")
	}
	if res.gain < 0 {
		t.Errorf("gain = %v, want >= 0", res.gain)
	}
}
