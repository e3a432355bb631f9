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
	"fmt"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"
)

// Interventional TreeSHAP (Lundberg et al., "From local explanations to global understanding with explainable AI for
// trees"). Features not in a coalition take the value of a background row, and the attributions are averaged over
// all background rows.

// Perturbation selects how features outside a coalition are treated when computing attributions.
type Perturbation int

const (
	// Interventional replaces absent features by the values of background rows.
	Interventional Perturbation = iota
	// TreePathDependent follows both children of a split on an absent feature, weighted by the training cover.
	TreePathDependent
)

func (p Perturbation) String() string {
	switch p {
	case Interventional:
		return "interventional"
	case TreePathDependent:
		return "tree_path_dependent"
	}
	return fmt.Sprintf("Perturbation(%d)", int(p))
}

// ParsePerturbation parses "interventional" or "tree_path_dependent".
func ParsePerturbation(s string) (Perturbation, error) {
	switch s {
	case "interventional":
		return Interventional, nil
	case "tree_path_dependent":
		return TreePathDependent, nil
	}
	return 0, fmt.Errorf("%w: unknown feature perturbation %q", ErrInvalidParams, s)
}

const (
	fromNone int8 = iota
	fromRow
	fromBackground
)

// indepState tracks the features whose splits were resolved by the explained row and by the background row on the
// current path.
type indepState struct {
	origin     []int8
	row, bg    []int
	coalitionW [][]float64
}

func newIndepState(nFeatures, depth int) *indepState {
	w := make([][]float64, depth+1)
	for a := range w {
		w[a] = make([]float64, depth+1)
		for b := range w[a] {
			if a+b <= depth {
				// a! b! / (a+b+1)!
				w[a][b] = 1 / (float64(a+b+1) * float64(combin.Binomial(a+b, a)))
			}
		}
	}
	return &indepState{
		origin:     make([]int8, nFeatures),
		row:        make([]int, 0, depth),
		bg:         make([]int, 0, depth),
		coalitionW: w,
	}
}

// interventional adds the attributions of the tree for row x against background row z to phi.
func (t *tree) interventional(x, z, phi []float64, st *indepState) {
	t.indepRecursive(0, x, z, phi, st)
}

func (t *tree) indepRecursive(nd int, x, z, phi []float64, st *indepState) {
	n := &t.nodes[nd]
	if n.feature < 0 {
		a, b := len(st.row), len(st.bg)
		if a > 0 {
			w := st.coalitionW[a-1][b] * n.value
			for _, f := range st.row {
				phi[f] += w
			}
		}
		if b > 0 {
			w := st.coalitionW[a][b-1] * n.value
			for _, f := range st.bg {
				phi[f] -= w
			}
		}
		return
	}
	f := n.feature
	xc, zc := n.next(x[f]), n.next(z[f])
	switch {
	case st.origin[f] == fromRow:
		t.indepRecursive(xc, x, z, phi, st)
	case st.origin[f] == fromBackground:
		t.indepRecursive(zc, x, z, phi, st)
	case xc == zc:
		t.indepRecursive(xc, x, z, phi, st)
	default:
		st.origin[f] = fromRow
		st.row = append(st.row, f)
		t.indepRecursive(xc, x, z, phi, st)
		st.row = st.row[:len(st.row)-1]
		st.origin[f] = fromBackground
		st.bg = append(st.bg, f)
		t.indepRecursive(zc, x, z, phi, st)
		st.bg = st.bg[:len(st.bg)-1]
		st.origin[f] = fromNone
	}
}

// ExplainInterventional computes the interventional SHAP values of every row of x in log-odds space, using the rows
// of background as reference distribution. The expected value is the mean margin of the background rows, so that
// the sum of a row of phi plus the expected value equals the row's margin.
func (c *Classifier) ExplainInterventional(x, background *mat.Dense) (phi *mat.Dense, expected float64, err error) {
	r, err := c.checkDims(x)
	if err != nil {
		return nil, 0, err
	}
	nbg, err := c.checkDims(background)
	if err != nil {
		return nil, 0, err
	}
	if nbg == 0 {
		return nil, 0, fmt.Errorf("%w: empty background data", ErrInvalidInput)
	}
	margins, err := c.PredictMargin(background)
	if err != nil {
		return nil, 0, err
	}
	for _, m := range margins {
		expected += m
	}
	expected /= float64(nbg)
	depth := 0
	for _, t := range c.trees {
		if d := t.depth(); d > depth {
			depth = d
		}
	}
	phi = mat.NewDense(r, c.nFeatures, nil)
	parallel.Range(0, r, 0, func(low, high int) {
		st := newIndepState(c.nFeatures, depth)
		for i := low; i < high; i++ {
			row, out := x.RawRowView(i), phi.RawRowView(i)
			for k := 0; k < nbg; k++ {
				z := background.RawRowView(k)
				for _, t := range c.trees {
					t.interventional(row, z, out, st)
				}
			}
			for j := range out {
				out[j] /= float64(nbg)
			}
		}
	})
	return phi, expected, nil
}
