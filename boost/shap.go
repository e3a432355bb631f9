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

package boost

import (
	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/mat"
)

// Path-dependent TreeSHAP (Lundberg et al., "Consistent individualized feature attribution for tree ensembles").
// Features not in a coalition follow both children of a split, weighted by the training cover of the children.

// pathElem is an entry of the unique feature path from the root to the current node.
type pathElem struct {
	feature int     // split feature, -1 for the root entry
	zero    float64 // fraction of the cover flowing down the path when the feature is not in the coalition
	one     float64 // 1 if the row flows down the path, 0 otherwise
	pweight float64 // permutation weight
}

// extendPath grows the path by one feature and updates the permutation weights.
func extendPath(path []pathElem, uniqueDepth int, zero, one float64, feature int) {
	path[uniqueDepth] = pathElem{feature: feature, zero: zero, one: one}
	if uniqueDepth == 0 {
		path[uniqueDepth].pweight = 1
	}
	for i := uniqueDepth - 1; i >= 0; i-- {
		path[i+1].pweight += one * path[i].pweight * float64(i+1) / float64(uniqueDepth+1)
		path[i].pweight = zero * path[i].pweight * float64(uniqueDepth-i) / float64(uniqueDepth+1)
	}
}

// unwindPath undoes extendPath for the entry at pathIndex.
func unwindPath(path []pathElem, uniqueDepth, pathIndex int) {
	one, zero := path[pathIndex].one, path[pathIndex].zero
	nextOnePortion := path[uniqueDepth].pweight
	for i := uniqueDepth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].pweight
			path[i].pweight = nextOnePortion * float64(uniqueDepth+1) / (float64(i+1) * one)
			nextOnePortion = tmp - path[i].pweight*zero*float64(uniqueDepth-i)/float64(uniqueDepth+1)
		} else {
			path[i].pweight = path[i].pweight * float64(uniqueDepth+1) / (zero * float64(uniqueDepth-i))
		}
	}
	for i := pathIndex; i < uniqueDepth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundPathSum returns the total permutation weight of the path as if the entry at pathIndex was unwound.
func unwoundPathSum(path []pathElem, uniqueDepth, pathIndex int) float64 {
	one, zero := path[pathIndex].one, path[pathIndex].zero
	nextOnePortion := path[uniqueDepth].pweight
	total := 0.0
	if one != 0 {
		for i := uniqueDepth - 1; i >= 0; i-- {
			tmp := nextOnePortion / (float64(i+1) * one)
			total += tmp
			nextOnePortion = path[i].pweight - tmp*zero*float64(uniqueDepth-i)
		}
	} else {
		for i := uniqueDepth - 1; i >= 0; i-- {
			total += path[i].pweight / (zero * float64(uniqueDepth-i))
		}
	}
	return total * float64(uniqueDepth+1)
}

// pathBufferSize returns the path buffer length needed for trees of the given depth.
func pathBufferSize(depth int) int {
	maxd := depth + 2
	return maxd * (maxd + 1) / 2
}

// shap adds the attributions of the tree for feature row x to phi. buf must hold pathBufferSize(t.depth()) entries.
func (t *tree) shap(x, phi []float64, buf []pathElem) {
	t.shapRecursive(x, phi, 0, 0, buf, 1, 1, -1)
}

func (t *tree) shapRecursive(x, phi []float64, nd, uniqueDepth int, parent []pathElem, parentZero, parentOne float64, parentFeature int) {
	path := parent[uniqueDepth+1:]
	copy(path, parent[:uniqueDepth+1])
	extendPath(path, uniqueDepth, parentZero, parentOne, parentFeature)
	n := &t.nodes[nd]
	if n.feature < 0 {
		for i := 1; i <= uniqueDepth; i++ {
			w := unwoundPathSum(path, uniqueDepth, i)
			e := &path[i]
			phi[e.feature] += w * (e.one - e.zero) * n.value
		}
		return
	}
	hot := n.next(x[n.feature])
	cold := n.left
	if hot == n.left {
		cold = n.right
	}
	hotZero := t.nodes[hot].cover / n.cover
	coldZero := t.nodes[cold].cover / n.cover
	incomingZero, incomingOne := 1.0, 1.0
	// a feature that was split on before is unwound and redone for this node
	pathIndex := 0
	for ; pathIndex <= uniqueDepth; pathIndex++ {
		if path[pathIndex].feature == n.feature {
			break
		}
	}
	if pathIndex != uniqueDepth+1 {
		incomingZero, incomingOne = path[pathIndex].zero, path[pathIndex].one
		unwindPath(path, uniqueDepth, pathIndex)
		uniqueDepth--
	}
	t.shapRecursive(x, phi, hot, uniqueDepth+1, path, hotZero*incomingZero, incomingOne, n.feature)
	t.shapRecursive(x, phi, cold, uniqueDepth+1, path, coldZero*incomingZero, 0, n.feature)
}

// ExpectedValue returns the mean margin over the training data as represented by the tree covers. It is the base
// value of the attributions returned by Explain.
func (c *Classifier) ExpectedValue() float64 {
	e := c.baseMargin
	for _, t := range c.trees {
		e += t.expectedValue()
	}
	return e
}

// Explain computes the SHAP values of every row of x in log-odds space: phi[i][j] is the contribution of feature j
// to the margin of row i, so that the sum of a row of phi plus the expected value equals the row's margin.
func (c *Classifier) Explain(x *mat.Dense) (phi *mat.Dense, expected float64, err error) {
	r, err := c.checkDims(x)
	if err != nil {
		return nil, 0, err
	}
	depth := 0
	for _, t := range c.trees {
		if d := t.depth(); d > depth {
			depth = d
		}
	}
	phi = mat.NewDense(r, c.nFeatures, nil)
	parallel.Range(0, r, 0, func(low, high int) {
		buf := make([]pathElem, pathBufferSize(depth))
		for i := low; i < high; i++ {
			row, out := x.RawRowView(i), phi.RawRowView(i)
			for _, t := range c.trees {
				t.shap(row, out, buf)
			}
		}
	})
	return phi, c.ExpectedValue(), nil
}
