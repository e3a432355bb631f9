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

package oddsratio

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"shapor/boost"
)

// FoldOddsRatio derives an odds ratio from the attributions of the group feature: the exponentiated mean attribution
// of the group members divided by the exponentiated mean attribution of the non-members. The result is NaN when one
// of the two sides is empty.
func FoldOddsRatio(phiGroup, group []float64) float64 {
	members, others := []float64{}, []float64{}
	for i, g := range group {
		switch g {
		case 1:
			members = append(members, phiGroup[i])
		case 0:
			others = append(others, phiGroup[i])
		}
	}
	if len(members) == 0 || len(others) == 0 {
		return math.NaN()
	}
	return math.Exp(stat.Mean(members, nil)) / math.Exp(stat.Mean(others, nil))
}

// OddsRatio fits a classifier of y on x and computes the odds ratio of the feature in column groupCol from the SHAP
// values of the same rows. group holds the 0/1 group membership of every row. Interventional attributions use the
// rows of x as background data.
func OddsRatio(x *mat.Dense, y, group []float64, groupCol int, params boost.Params, perturbation boost.Perturbation) (float64, error) {
	clf, err := boost.Fit(x, y, params)
	if err != nil {
		return math.NaN(), err
	}
	var phi *mat.Dense
	switch perturbation {
	case boost.TreePathDependent:
		phi, _, err = clf.Explain(x)
	default:
		phi, _, err = clf.ExplainInterventional(x, x)
	}
	if err != nil {
		return math.NaN(), err
	}
	return FoldOddsRatio(mat.Col(nil, groupCol, phi), group), nil
}

// selectRows returns the given rows of x, y and group.
func selectRows(x *mat.Dense, y, group []float64, rows []int) (*mat.Dense, []float64, []float64) {
	_, c := x.Dims()
	sub := mat.NewDense(len(rows), c, nil)
	ySub, gSub := make([]float64, len(rows)), make([]float64, len(rows))
	for i, r := range rows {
		sub.SetRow(i, x.RawRowView(r))
		ySub[i], gSub[i] = y[r], group[r]
	}
	return sub, ySub, gSub
}

// foldOddsRatio computes the odds ratio of one fold. The classifier is trained and explained on the fold's own rows.
func foldOddsRatio(x *mat.Dense, y, group []float64, groupCol int, fold []int, params boost.Params, perturbation boost.Perturbation) (float64, error) {
	xf, yf, gf := selectRows(x, y, group, fold)
	return OddsRatio(xf, yf, gf, groupCol, params, perturbation)
}
