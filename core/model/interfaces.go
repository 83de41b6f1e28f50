package model

import "gonum.org/v1/gonum/mat"

// Fitter is a model that can be trained.
type Fitter interface {
	// Fit trains the model on X and y.
	Fit(X, y mat.Matrix) error
}

// Predictor is a model that can predict.
type Predictor interface {
	// Predict returns predictions for X.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Model is a supervised model.
type Model interface {
	Fitter
	Predictor
}

// ProbabilisticClassifier additionally exposes class probabilities.
type ProbabilisticClassifier interface {
	Model

	// PredictProba returns per-class probabilities for X.
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}
