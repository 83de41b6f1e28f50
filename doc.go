// Package ccfs provides canonical correlation forests for Go: ensembles
// of decision trees whose internal splits are searched over projection
// directions fitted by canonical correlation analysis (or related linear
// projections) between the features and the class encoding at each node.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/ttomita/ccfs/ccf"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    X := mat.NewDense(4, 2, []float64{0, 0, 0, 1, 1, 0, 1, 1})
//	    y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
//
//	    clf := ccf.NewClassifier(ccf.WithNumTrees(50), ccf.WithSeed(1))
//	    if err := clf.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    pred, err := clf.Predict(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(pred))
//	}
//
// # Packages
//
//   - ccf: the forest itself (classifier, regressor, options, persistence)
//   - metrics: evaluation metrics used for scoring and out-of-bag error
//   - preprocessing: NaN-aware standardization
//   - core/model: estimator interfaces and gob persistence helpers
//   - core/parallel: worker fan-out used for parallel tree growth
//   - pkg/errors: structured errors and the warning system
//   - pkg/log: slog-based structured logging
package ccfs
