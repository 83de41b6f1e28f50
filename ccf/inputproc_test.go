package ccf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestProcessInputDataOrdinal(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 10,
		1, 20,
		2, 30,
		3, 40,
	})

	xp, details, err := ProcessInputData(X, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	r, c := xp.Dims()
	if r != 4 || c != 2 {
		t.Fatalf("dims = (%d, %d), want (4, 2)", r, c)
	}
	if details.NumExpanded != 2 || details.NumOriginal != 2 {
		t.Errorf("details report %d expanded / %d original", details.NumExpanded, details.NumOriginal)
	}

	// standardized columns have zero mean
	for j := 0; j < 2; j++ {
		var s float64
		for i := 0; i < 4; i++ {
			s += xp.At(i, j)
		}
		if math.Abs(s) > 1e-9 {
			t.Errorf("column %d mean = %v after standardization", j, s/4)
		}
		if details.FeatureGroups[j] != j {
			t.Errorf("column %d group = %d", j, details.FeatureGroups[j])
		}
	}
}

func TestProcessInputDataCategorical(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0.5, 2,
		1.5, 5,
		2.5, 2,
		3.5, 7,
	})

	xp, details, err := ProcessInputData(X, []bool{true, false}, true)
	if err != nil {
		t.Fatal(err)
	}

	// categories {2, 5, 7} expand to three one-hot columns
	_, c := xp.Dims()
	if c != 4 {
		t.Fatalf("expanded columns = %d, want 4", c)
	}
	if got := details.Categories[1]; len(got) != 3 || got[0] != 2 || got[1] != 5 || got[2] != 7 {
		t.Fatalf("categories = %v, want [2 5 7]", got)
	}

	// all one-hot columns share the original feature's group
	for j := 1; j < 4; j++ {
		if details.FeatureGroups[j] != 1 {
			t.Errorf("expanded column %d group = %d, want 1", j, details.FeatureGroups[j])
		}
	}

	// row 0 has category 2: first one-hot set, others clear
	if xp.At(0, 1) != 1 || xp.At(0, 2) != 0 || xp.At(0, 3) != 0 {
		t.Errorf("row 0 one-hot = [%v %v %v]", xp.At(0, 1), xp.At(0, 2), xp.At(0, 3))
	}
}

func TestProcessInputDataMissing(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, math.NaN(), 3, math.NaN()})

	// mean policy: missing entries become the column mean (0 standardized)
	xp, _, err := ProcessInputData(X, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if xp.At(1, 0) != 0 || xp.At(3, 0) != 0 {
		t.Errorf("missing entries = (%v, %v), want standardized mean 0", xp.At(1, 0), xp.At(3, 0))
	}

	// random policy: NaN is preserved for per-tree substitution
	xp, _, err = ProcessInputData(X, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(xp.At(1, 0)) {
		t.Error("missing entry should stay NaN when nanToMean is off")
	}
}

func TestProcessDetailsTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0.5, 2,
		1.5, 5,
		2.5, 2,
		3.5, 7,
	})
	xp, details, err := ProcessInputData(X, []bool{true, false}, true)
	if err != nil {
		t.Fatal(err)
	}

	// transforming the training matrix reproduces the processed one
	got, err := details.Transform(X)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(xp, got, 1e-12) {
		t.Error("Transform does not reproduce the training-time processing")
	}

	// unknown category maps to an all-zero block
	xt := mat.NewDense(1, 2, []float64{1.0, 99})
	got, err = details.Transform(xt)
	if err != nil {
		t.Fatal(err)
	}
	if got.At(0, 1) != 0 || got.At(0, 2) != 0 || got.At(0, 3) != 0 {
		t.Error("unknown category should produce an all-zero one-hot block")
	}

	// wrong width is rejected
	if _, err := details.Transform(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected a dimension error")
	}
}
