// PTRA: Patient Trajectory Analysis Library
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

// Package boost implements gradient boosted decision trees for binary classification with the logistic loss, and
// exact interventional and path-dependent TreeSHAP attributions for the fitted ensembles. Trees are grown with second order gradient
// statistics and learn a default direction for missing (NaN) feature values.
package boost

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidParams is returned when boosting parameters are out of range.
	ErrInvalidParams = errors.New("invalid boosting parameters")
	// ErrInvalidInput is returned when the training data cannot be used for fitting.
	ErrInvalidInput = errors.New("invalid training data")
)

// Params are the boosting hyperparameters.
type Params struct {
	NEstimators    int     // nr of boosting rounds, one tree per round
	MaxDepth       int     // maximum depth of a tree
	LearningRate   float64 // shrinkage of the leaf weights (eta)
	Lambda         float64 // L2 regularisation of the leaf weights
	MinChildWeight float64 // minimum hessian sum of a child
	Gamma          float64 // minimum loss reduction of a split
	BaseScore      float64 // initial prediction, as a probability
}

// DefaultParams returns the parameters of a default xgboost binary:logistic classifier.
func DefaultParams() Params {
	return Params{
		NEstimators:    100,
		MaxDepth:       6,
		LearningRate:   0.3,
		Lambda:         1,
		MinChildWeight: 1,
		Gamma:          0,
		BaseScore:      0.5,
	}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("%w: NEstimators = %d", ErrInvalidParams, p.NEstimators)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: MaxDepth = %d", ErrInvalidParams, p.MaxDepth)
	case !(p.LearningRate > 0):
		return fmt.Errorf("%w: LearningRate = %v", ErrInvalidParams, p.LearningRate)
	case p.Lambda < 0 || p.MinChildWeight < 0 || p.Gamma < 0:
		return fmt.Errorf("%w: negative regularisation", ErrInvalidParams)
	case !(p.BaseScore > 0 && p.BaseScore < 1):
		return fmt.Errorf("%w: BaseScore = %v", ErrInvalidParams, p.BaseScore)
	}
	return nil
}

// Classifier is a fitted boosted tree ensemble. Predictions are in log-odds (margin) space unless stated otherwise.
type Classifier struct {
	Params     Params
	nFeatures  int
	baseMargin float64
	trees      []*tree
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// columns copies a matrix into column major slices.
func columns(x *mat.Dense) [][]float64 {
	r, c := x.Dims()
	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(make([]float64, r), j, x)
	}
	return cols
}

// Fit trains a classifier on the rows of x with 0/1 labels y. Missing feature values are NaN.
func Fit(x *mat.Dense, y []float64, params Params) (*Classifier, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	r, c := x.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrInvalidInput, r, len(y))
	}
	for _, label := range y {
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("%w: label %v is not 0 or 1", ErrInvalidInput, label)
		}
	}
	clf := &Classifier{Params: params, nFeatures: c, baseMargin: logit(params.BaseScore)}
	g := newGrower(columns(x), params)
	margin := make([]float64, r)
	for i := range margin {
		margin[i] = clf.baseMargin
	}
	for round := 0; round < params.NEstimators; round++ {
		for i, m := range margin {
			p := sigmoid(m)
			g.grad[i] = p - y[i]
			g.hess[i] = math.Max(p*(1-p), 1e-16)
		}
		t := g.grow()
		for i, leaf := range g.pos {
			margin[i] += t.nodes[leaf].value
		}
		clf.trees = append(clf.trees, t)
	}
	return clf, nil
}

// NFeatures returns the number of features the classifier was trained on.
func (c *Classifier) NFeatures() int {
	return c.nFeatures
}

// NTrees returns the number of trees in the ensemble.
func (c *Classifier) NTrees() int {
	return len(c.trees)
}

func (c *Classifier) checkDims(x *mat.Dense) (int, error) {
	r, cols := x.Dims()
	if cols != c.nFeatures {
		return 0, fmt.Errorf("%w: %d features, classifier has %d", ErrInvalidInput, cols, c.nFeatures)
	}
	return r, nil
}

// PredictMargin returns the log-odds of every row of x.
func (c *Classifier) PredictMargin(x *mat.Dense) ([]float64, error) {
	r, err := c.checkDims(x)
	if err != nil {
		return nil, err
	}
	result := make([]float64, r)
	leaves := make([]float64, len(c.trees))
	for i := range result {
		row := x.RawRowView(i)
		for k, t := range c.trees {
			leaves[k] = t.nodes[t.leaf(row)].value
		}
		result[i] = c.baseMargin + floats.Sum(leaves)
	}
	return result, nil
}

// PredictProba returns the probability of class 1 for every row of x.
func (c *Classifier) PredictProba(x *mat.Dense) ([]float64, error) {
	result, err := c.PredictMargin(x)
	if err != nil {
		return nil, err
	}
	for i, m := range result {
		result[i] = sigmoid(m)
	}
	return result, nil
}
