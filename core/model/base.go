// Package model defines the estimator interfaces shared by ccfs models and
// the gob-based persistence helpers.
package model

import "github.com/ttomita/ccfs/pkg/errors"

// BaseEstimator is embedded by every model. It tracks fitted state and
// produces the NotFittedError guards the public Predict/Score/Save
// surfaces rely on.
type BaseEstimator struct {
	fitted bool
}

// IsFitted reports whether the model has been fitted.
func (e *BaseEstimator) IsFitted() bool {
	return e.fitted
}

// SetFitted marks the model as fitted.
func (e *BaseEstimator) SetFitted() {
	e.fitted = true
}

// Reset returns the model to its unfitted state.
func (e *BaseEstimator) Reset() {
	e.fitted = false
}

// RequireFitted returns a NotFittedError naming the model and the method
// being attempted when the estimator has not been fitted yet.
func (e *BaseEstimator) RequireFitted(model, method string) error {
	if !e.fitted {
		return errors.NewNotFittedError(model, method)
	}
	return nil
}
