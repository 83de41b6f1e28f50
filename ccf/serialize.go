package ccf

import (
	"io"

	"github.com/ttomita/ccfs/core/model"
	"github.com/ttomita/ccfs/pkg/errors"
)

// Save writes the fitted forest to w with gob encoding. The stream carries
// the resolved options, class values, input-process details, target
// scaling, and every tree as a rotation plus its node graph.
func (f *Forest) Save(w io.Writer) error {
	if f == nil {
		return errors.NewValueError("Forest.Save", "nil forest")
	}
	return model.SaveModelToWriter(f, w)
}

// LoadForest reads a forest written by Save.
func LoadForest(r io.Reader) (*Forest, error) {
	var f Forest
	if err := model.LoadModelFromReader(&f, r); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save persists the classifier's forest.
func (c *Classifier) Save(w io.Writer) error {
	if err := c.RequireFitted("Classifier", "Save"); err != nil {
		return err
	}
	return c.Forest.Save(w)
}

// LoadClassifier reconstructs a fitted classifier from a stream written by
// Classifier.Save.
func LoadClassifier(r io.Reader) (*Classifier, error) {
	f, err := LoadForest(r)
	if err != nil {
		return nil, err
	}
	c := &Classifier{Opts: f.Opts, Forest: f}
	c.SetFitted()
	return c, nil
}

// Save persists the regressor's forest.
func (r *Regressor) Save(w io.Writer) error {
	if err := r.RequireFitted("Regressor", "Save"); err != nil {
		return err
	}
	return r.Forest.Save(w)
}

// LoadRegressor reconstructs a fitted regressor from a stream written by
// Regressor.Save.
func LoadRegressor(rd io.Reader) (*Regressor, error) {
	f, err := LoadForest(rd)
	if err != nil {
		return nil, err
	}
	r := &Regressor{Opts: f.Opts, Forest: f}
	r.SetFitted()
	return r, nil
}
