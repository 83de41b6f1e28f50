package preprocessing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStandardScalerRoundTrip(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	s := NewStandardScaler()
	scaled, err := s.FitTransform(X)
	if err != nil {
		t.Fatal(err)
	}

	for j := 0; j < 2; j++ {
		var sum float64
		for i := 0; i < 4; i++ {
			sum += scaled.At(i, j)
		}
		if math.Abs(sum) > 1e-9 {
			t.Errorf("column %d mean = %v, want 0", j, sum/4)
		}
	}

	back, err := s.InverseTransform(scaled)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(X, back, 1e-9) {
		t.Error("inverse transform does not recover the input")
	}
}

func TestStandardScalerNaNAndConstant(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 7,
		math.NaN(), 7,
		3, 7,
		math.NaN(), 7,
	})

	s := NewStandardScaler()
	if err := s.Fit(X); err != nil {
		t.Fatal(err)
	}

	// NaNs are ignored in the moments
	if s.Mean[0] != 2 {
		t.Errorf("mean = %v, want 2 (NaNs ignored)", s.Mean[0])
	}
	// a constant column keeps scale 1 instead of dividing by zero
	if s.Scale[1] != 1 {
		t.Errorf("constant column scale = %v, want 1", s.Scale[1])
	}

	scaled, err := s.Transform(X)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(scaled.At(1, 0)) {
		t.Error("NaN entries should pass through Transform")
	}
	if scaled.At(0, 1) != 0 {
		t.Errorf("constant column transforms to %v, want 0", scaled.At(0, 1))
	}
}

func TestStandardScalerNotFitted(t *testing.T) {
	s := NewStandardScaler()
	if _, err := s.Transform(mat.NewDense(1, 1, nil)); err == nil {
		t.Error("Transform before Fit should fail")
	}
}
