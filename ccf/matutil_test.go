package ccf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestColVaries(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		1, 5,
		1, 5.2,
		1, 5,
	})
	rows := []int{0, 1, 2, 3}

	if colVaries(X, rows, 0, 1e-10) {
		t.Error("constant column reported as varying")
	}
	if !colVaries(X, rows, 1, 1e-10) {
		t.Error("varying column reported as constant")
	}
	// variation below tolerance counts as constant
	if colVaries(X, rows, 1, 0.5) {
		t.Error("sub-tolerance variation reported as varying")
	}
	if colVaries(X, rows[:1], 0, 1e-10) {
		t.Error("single row cannot vary")
	}
}

func TestTwoUniqueRows(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 1,
		0, 0,
		1, 1,
	})
	rows := []int{0, 1, 2, 3}
	cols := []int{0, 1}

	i1, i2, ok := twoUniqueRows(X, rows, cols, 1e-10)
	if !ok {
		t.Fatal("expected exactly two unique rows")
	}
	if i1 != 0 || i2 != 1 {
		t.Errorf("expected representatives 0 and 1, got %d and %d", i1, i2)
	}

	// three distinct rows
	X3 := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 2, 2})
	if _, _, ok := twoUniqueRows(X3, []int{0, 1, 2}, cols, 1e-10); ok {
		t.Error("three distinct rows reported as two")
	}

	// all rows identical
	X1 := mat.NewDense(3, 2, []float64{1, 2, 1, 2, 1, 2})
	if _, _, ok := twoUniqueRows(X1, []int{0, 1, 2}, cols, 1e-10); ok {
		t.Error("identical rows reported as two unique")
	}
}

func TestMidpoint(t *testing.T) {
	if got := midpoint(0, 1); got != 0.5 {
		t.Errorf("midpoint(0,1) = %v", got)
	}

	// large nearly-equal values must stay strictly between the inputs
	lo := 1e15
	hi := math.Nextafter(math.Nextafter(lo, math.Inf(1)), math.Inf(1))
	got := midpoint(lo, hi)
	if !(got > lo && got < hi) {
		t.Errorf("midpoint(%v, %v) = %v not in (lo, hi)", lo, hi, got)
	}
}

func TestApproxEqual(t *testing.T) {
	if !approxEqual(1.0, 1.0) {
		t.Error("identical values not equal")
	}
	if !approxEqual(1.0, 1.0+machEps) {
		t.Error("values within 10 eps not equal")
	}
	if approxEqual(1.0, 1.0+1e-16*100) {
		t.Error("values beyond 10 eps reported equal")
	}
	if approxEqual(0.5, 0.25) {
		t.Error("distinct values reported equal")
	}
}

func TestSafeDivide(t *testing.T) {
	if got := safeDivide(4, 2); got != 2 {
		t.Errorf("safeDivide(4,2) = %v", got)
	}
	if got := safeDivide(4, 0); got != 0 {
		t.Errorf("safeDivide(4,0) = %v", got)
	}
}

func TestMassiveColumns(t *testing.T) {
	Y := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		1, 0, 0,
		0, 1, 0,
	})
	rows := []int{0, 1, 2}
	if got := massiveColumns(Y, rows); got != 2 {
		t.Errorf("expected 2 columns with mass, got %d", got)
	}
	if got := massiveColumns(Y, rows[:2]); got != 1 {
		t.Errorf("expected 1 column with mass, got %d", got)
	}
}
