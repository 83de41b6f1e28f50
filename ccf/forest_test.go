package ccf

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ttomita/ccfs/pkg/errors"
)

func init() {
	// keep degenerate-data warnings out of the test output
	errors.SetWarningHandler(func(error) {})
}

// xorData samples the XOR benchmark: uniform points in the unit square
// labelled by (x1 > 0.5) XOR (x2 > 0.5).
func xorData(n int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x1 := rng.Float64()
		x2 := rng.Float64()
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)
		if (x1 > 0.5) != (x2 > 0.5) {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestForestXOROOBError(t *testing.T) {
	X, y := xorData(200, 11)

	clf := NewClassifier(
		WithNumTrees(50),
		WithBagging(true),
		WithProjections(ProjectionCCA),
		WithSeed(17),
		WithParallel(false),
	)
	if err := clf.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	oob, ok := clf.OOBError()
	if !ok {
		t.Fatal("out-of-bag error should be available with bagging on")
	}
	if oob >= 0.15 {
		t.Errorf("out-of-bag error = %v, want < 0.15", oob)
	}
}

func TestForestSeedDeterminism(t *testing.T) {
	X, y := xorData(80, 5)

	fit := func(useParallel bool) []byte {
		clf := NewClassifier(
			WithNumTrees(10),
			WithProjections(ProjectionCCA),
			WithSeed(23),
			WithParallel(useParallel),
		)
		if err := clf.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(clf.Forest.Trees); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	serial := fit(false)
	parallelBytes := fit(true)
	if !bytes.Equal(serial, parallelBytes) {
		t.Error("serial and parallel builds with identical seeds differ")
	}
	if !bytes.Equal(serial, fit(false)) {
		t.Error("repeated serial builds with identical seeds differ")
	}
}

func TestForestSerializationRoundTrip(t *testing.T) {
	X, y := xorData(100, 3)

	clf := NewClassifier(
		WithNumTrees(10),
		WithProjections(ProjectionCCA),
		WithSeed(7),
		WithParallel(false),
	)
	if err := clf.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := clf.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadClassifier(&buf)
	if err != nil {
		t.Fatal(err)
	}

	xTest, _ := xorData(50, 99)
	want, err := clf.PredictProba(xTest)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.PredictProba(xTest)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(want, got) {
		t.Error("loaded forest predicts differently from the original")
	}
}

func TestForestTrainingPredictionsMatchLeafCounts(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	clf := NewClassifier(
		WithNumTrees(1),
		WithBagging(false),
		WithProjections(ProjectionOriginal),
		WithTieBreak(TieBreakFirst),
		WithParallel(false),
	)
	if err := clf.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	pred, err := clf.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if pred.At(i, 0) != y.At(i, 0) {
			t.Errorf("row %d: predicted %v, want %v", i, pred.At(i, 0), y.At(i, 0))
		}
	}

	score, err := clf.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if score != 1.0 {
		t.Errorf("training score = %v, want 1", score)
	}
}

func TestRegressorConstantTarget(t *testing.T) {
	X := mat.NewDense(5, 2, []float64{
		0, 1,
		1, 2,
		2, 3,
		3, 4,
		4, 5,
	})
	y := mat.NewDense(5, 1, []float64{3.5, 3.5, 3.5, 3.5, 3.5})

	reg := NewRegressor(
		WithNumTrees(5),
		WithBagging(false),
		WithParallel(false),
	)
	if err := reg.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	root := reg.Forest.Trees[0].Root
	if !root.Leaf {
		t.Fatal("constant target must produce a leaf root")
	}

	pred, err := reg.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if math.Abs(pred.At(i, 0)-3.5) > 1e-9 {
			t.Errorf("row %d: predicted %v, want 3.5", i, pred.At(i, 0))
		}
	}
}

func TestRegressorStepFunction(t *testing.T) {
	n := 40
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i >= n/2 {
			y.Set(i, 0, 10)
		}
	}

	reg := NewRegressor(
		WithNumTrees(10),
		WithBagging(false),
		WithParallel(false),
		WithSeed(2),
	)
	if err := reg.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, err := reg.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		want := 0.0
		if i >= n/2 {
			want = 10
		}
		if math.Abs(pred.At(i, 0)-want) > 1e-6 {
			t.Errorf("row %d: predicted %v, want %v", i, pred.At(i, 0), want)
		}
	}

	score, err := reg.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if score < 0.999 {
		t.Errorf("training r2 = %v, want ~1", score)
	}

	// bagging off: no out-of-bag error
	if _, ok := reg.OOBError(); ok {
		t.Error("out-of-bag error should be unavailable without bagging")
	}
}

func TestFitPredictDiscardsTrees(t *testing.T) {
	X, y := xorData(80, 13)
	xTest, yTest := xorData(40, 29)

	clf := NewClassifier(
		WithNumTrees(30),
		WithProjections(ProjectionCCA),
		WithKeepTrees(false),
		WithSeed(5),
		WithParallel(false),
	)
	pred, err := clf.FitPredict(X, y, xTest)
	if err != nil {
		t.Fatal(err)
	}

	r, c := pred.Dims()
	if r != 40 || c != 2 {
		t.Fatalf("prediction dims = (%d, %d), want (40, 2)", r, c)
	}

	// the mean emissions should classify most of the held-out set
	correct := 0
	for i := 0; i < r; i++ {
		pick := 0.0
		if pred.At(i, 1) > pred.At(i, 0) {
			pick = 1
		}
		if pick == yTest.At(i, 0) {
			correct++
		}
	}
	if correct < 30 {
		t.Errorf("held-out accuracy %d/40 too low", correct)
	}

	// trees were discarded: no retained ensemble, no OOB error
	if len(clf.Forest.Trees) != 0 {
		t.Error("trees should have been discarded")
	}
	if _, ok := clf.OOBError(); ok {
		t.Error("out-of-bag error should be unavailable when trees are discarded")
	}
	if _, err := clf.Predict(xTest); err == nil {
		t.Error("Predict should fail after trees were discarded")
	}
}

func TestForestRotations(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		5, 5,
		5, 6,
		6, 5,
		6, 6,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	for _, rot := range []RotationKind{RotationRandom, RotationPCA, RotationForest} {
		clf := NewClassifier(
			WithNumTrees(3),
			WithBagging(false),
			WithProjections(ProjectionCCA),
			WithTreeRotation(rot),
			WithSeed(31),
			WithParallel(false),
		)
		if err := clf.Fit(X, y); err != nil {
			t.Fatalf("%s: %v", rot, err)
		}
		score, err := clf.Score(X, y)
		if err != nil {
			t.Fatalf("%s: %v", rot, err)
		}
		if score != 1.0 {
			t.Errorf("%s: training score = %v, want 1", rot, score)
		}
		if clf.Forest.Trees[0].Rotation == nil {
			t.Errorf("%s: rotation not recorded on the tree", rot)
		}
	}
}

func TestMultiTaskPrediction(t *testing.T) {
	// two tasks of two classes each, both determined by column 0
	X := mat.NewDense(6, 2, []float64{
		0, 5,
		0, 3,
		0, 4,
		1, 5,
		1, 3,
		1, 4,
	})
	Y := mat.NewDense(6, 4, []float64{
		1, 0, 0, 1,
		1, 0, 0, 1,
		1, 0, 0, 1,
		0, 1, 1, 0,
		0, 1, 1, 0,
		0, 1, 1, 0,
	})

	clf := NewClassifier(
		WithNumTrees(5),
		WithBagging(false),
		WithProjections(ProjectionCCA),
		WithTaskIDs(0, 2),
		WithSeed(3),
		WithParallel(false),
	)
	if err := clf.Fit(X, Y); err != nil {
		t.Fatal(err)
	}

	pred, err := clf.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	r, c := pred.Dims()
	if r != 6 || c != 2 {
		t.Fatalf("prediction dims = (%d, %d), want (6, 2)", r, c)
	}
	for i := 0; i < 6; i++ {
		wantTask1, wantTask2 := 0.0, 3.0
		if X.At(i, 0) == 1 {
			wantTask1, wantTask2 = 1.0, 2.0
		}
		if pred.At(i, 0) != wantTask1 || pred.At(i, 1) != wantTask2 {
			t.Errorf("row %d: predicted (%v, %v), want (%v, %v)",
				i, pred.At(i, 0), pred.At(i, 1), wantTask1, wantTask2)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	cases := []struct {
		name string
		clf  *Classifier
	}{
		{"unknown criterion", NewClassifier(WithCriterion("bogus"))},
		{"regression criterion on classifier", NewClassifier(WithCriterion("mse"))},
		{"unknown tie-break", NewClassifier(WithTieBreak(TieBreak("sometimes")))},
		{"unknown rotation", NewClassifier(WithTreeRotation(RotationKind("spin")))},
		{"no directions at all", NewClassifier(WithProjections(), WithOriginalAxes(OriginalAxesOff))},
	}

	for _, tc := range cases {
		err := tc.clf.Fit(X, y)
		if err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
			continue
		}
		var verr *errors.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: got %T (%v), want ValidationError", tc.name, err, err)
		}
	}
}

func TestNotFittedErrors(t *testing.T) {
	clf := NewClassifier()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	if _, err := clf.Predict(X); err == nil {
		t.Error("Predict before Fit should fail")
	}
	if _, err := clf.PredictProba(X); err == nil {
		t.Error("PredictProba before Fit should fail")
	}

	reg := NewRegressor()
	if _, err := reg.Predict(X); err == nil {
		t.Error("Regressor.Predict before Fit should fail")
	}
}

func TestMissingValuesRandom(t *testing.T) {
	X, y := xorData(60, 21)
	// punch a few holes
	X.Set(3, 0, math.NaN())
	X.Set(10, 1, math.NaN())
	X.Set(40, 0, math.NaN())

	clf := NewClassifier(
		WithNumTrees(10),
		WithProjections(ProjectionCCA),
		WithMissingValues(MissingRandom),
		WithSeed(9),
		WithParallel(false),
	)
	if err := clf.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	xTest, _ := xorData(20, 77)
	pred, err := clf.Predict(xTest)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := pred.Dims()
	if r != 20 {
		t.Fatalf("prediction rows = %d, want 20", r)
	}
	for i := 0; i < r; i++ {
		if v := pred.At(i, 0); v != 0 && v != 1 {
			t.Errorf("row %d: prediction %v is not a class value", i, v)
		}
	}
}
