// Package ccf implements canonical correlation forests: bagged ensembles
// of canonical correlation trees. At each node a subsample of feature
// groups is projected onto directions fitted by CCA (or PCA, class-wise
// CCA, random orthonormal, or the original axes) and the best sorted split
// over all candidate directions is taken. Trees optionally train on
// rotated inputs (random orthogonal, PCA, or Rotation-Forest block PCA);
// the rotation is replayed at inference.
//
// The Classifier and Regressor types expose the scikit-learn style
// Fit/Predict interface; the Forest type underneath carries everything a
// fitted model needs, and round-trips through gob via Save/LoadForest.
package ccf
