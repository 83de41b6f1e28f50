package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ttomita/ccfs/pkg/errors"
)

// Accuracy computes the fraction of rows where the predicted label equals
// the true label. Both inputs are n×1 label matrices.
func Accuracy(yTrue, yPred mat.Matrix) (float64, error) {
	rT, cT := yTrue.Dims()
	rP, cP := yPred.Dims()

	if rT == 0 {
		return 0, errors.NewValueError("Accuracy", "empty matrix")
	}
	if rT != rP || cT != cP {
		return 0, errors.NewDimensionError("Accuracy", rT, rP, 0)
	}

	correct := 0
	for i := 0; i < rT; i++ {
		if yTrue.At(i, 0) == yPred.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rT), nil
}

// MisclassificationRate is 1 - Accuracy.
func MisclassificationRate(yTrue, yPred mat.Matrix) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}
