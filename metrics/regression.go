// Package metrics provides the evaluation metrics used for out-of-bag
// error estimates and model scoring.
package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ttomita/ccfs/pkg/errors"
)

// MSE computes the mean squared error between two vectors.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}

	return sum / float64(n), nil
}

// ColumnMSE computes the mean squared error of each output column. yTrue
// and yPred must have the same shape.
func ColumnMSE(yTrue, yPred mat.Matrix) ([]float64, error) {
	rT, cT := yTrue.Dims()
	rP, cP := yPred.Dims()

	if rT == 0 || cT == 0 {
		return nil, errors.NewValueError("ColumnMSE", "empty matrix")
	}
	if rT != rP || cT != cP {
		return nil, errors.NewDimensionError("ColumnMSE", rT, rP, 0)
	}

	out := make([]float64, cT)
	tCol := mat.NewVecDense(rT, nil)
	pCol := mat.NewVecDense(rT, nil)
	for j := 0; j < cT; j++ {
		for i := 0; i < rT; i++ {
			tCol.SetVec(i, yTrue.At(i, j))
			pCol.SetVec(i, yPred.At(i, j))
		}
		v, err := MSE(tCol, pCol)
		if err != nil {
			return nil, err
		}
		out[j] = v
	}
	return out, nil
}

// R2Score computes the coefficient of determination 1 - SS_res/SS_tot,
// averaged over output columns. A constant-target column scores 1 when
// predicted exactly and 0 otherwise.
func R2Score(yTrue, yPred mat.Matrix) (float64, error) {
	rT, cT := yTrue.Dims()
	rP, cP := yPred.Dims()

	if rT == 0 || cT == 0 {
		return 0, errors.NewValueError("R2Score", "empty matrix")
	}
	if rT != rP || cT != cP {
		return 0, errors.NewDimensionError("R2Score", rT, rP, 0)
	}

	var total float64
	for j := 0; j < cT; j++ {
		var mean float64
		for i := 0; i < rT; i++ {
			mean += yTrue.At(i, j)
		}
		mean /= float64(rT)

		var ssRes, ssTot float64
		for i := 0; i < rT; i++ {
			diff := yTrue.At(i, j) - yPred.At(i, j)
			ssRes += diff * diff
			dev := yTrue.At(i, j) - mean
			ssTot += dev * dev
		}

		switch {
		case ssTot > 0:
			total += 1 - ssRes/ssTot
		case ssRes == 0:
			total += 1
		}
	}
	return total / float64(cT), nil
}
