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

// Package oddsratio estimates treatment odds ratios per cohort group from the SHAP values of boosted tree
// classifiers, with repeated stratified k-fold splits and percentile confidence intervals.
package oddsratio

import (
	"fmt"
	"log"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"shapor/boost"
	"shapor/frame"
	"shapor/utils"
)

// Experiment holds the settings of the odds ratio estimation.
type Experiment struct {
	NFolds       int                // nr of stratified folds per repetition
	NRep         int                // nr of repetitions, repetition i splits with seed i
	Params       boost.Params       // classifier parameters
	Perturbation boost.Perturbation // SHAP feature perturbation, interventional by default
}

// Result is one odds ratio estimate: the median over the repetitions with a 95% percentile interval.
type Result struct {
	Cohort    string  `parquet:"cohort"`
	Group     string  `parquet:"group"`
	Treatment string  `parquet:"treatment"`
	OR        float64 `parquet:"OR"`
	Lower     float64 `parquet:"2.5%"`
	Upper     float64 `parquet:"97.5%"`
}

// Features returns the feature columns for estimating the odds ratio of a treatment: the confounders, the other
// treatments and the group, in that order. Names occurring twice are kept once. The second result is the index of
// the group column.
func Features(confounders, treatments []string, treatment, group string) ([]string, int) {
	features := []string{}
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			features = append(features, name)
		}
	}
	for _, c := range confounders {
		if c != group {
			add(c)
		}
	}
	for _, t := range treatments {
		if t != treatment && t != group {
			add(t)
		}
	}
	add(group)
	return features, len(features) - 1
}

// repetitionOddsRatio averages the finite fold odds ratios. It is NaN when no fold produced a finite value.
func repetitionOddsRatio(foldORs []float64) float64 {
	mean, err := stats.Float64Data(utils.Finite(foldORs)).Mean()
	if err != nil {
		return math.NaN()
	}
	return mean
}

// Aggregate computes the median and the 2.5 and 97.5 percentiles of the finite repetition odds ratios. All three
// are NaN when there is no finite value.
func Aggregate(repetitionORs []float64) (or, lower, upper float64) {
	finite := utils.Finite(repetitionORs)
	if len(finite) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return utils.Percentile(finite, 50), utils.Percentile(finite, 2.5), utils.Percentile(finite, 97.5)
}

// design returns the feature matrix, the 0/1 treatment outcome and the 0/1 group membership of every row. The group
// column keeps its table values in the matrix; its 0/1 form drives stratification and the odds ratio split.
func design(data *frame.Frame, features []string, groupCol int, treatment string) (x *mat.Dense, y, group []float64, err error) {
	if x, err = data.Matrix(features); err != nil {
		return nil, nil, nil, err
	}
	if y, err = data.Binary(treatment); err != nil {
		return nil, nil, nil, err
	}
	if group, err = data.Binary(features[groupCol]); err != nil {
		return nil, nil, nil, err
	}
	return x, y, group, nil
}

// Estimate computes the odds ratio of the given group for a treatment, adjusting for the other features.
func (e *Experiment) Estimate(data *frame.Frame, features []string, groupCol int, treatment string) (or, lower, upper float64, err error) {
	x, y, group, err := design(data, features, groupCol, treatment)
	if err != nil {
		return 0, 0, 0, err
	}
	repetitionORs := make([]float64, 0, e.NRep)
	for rep := 0; rep < e.NRep; rep++ {
		folds, err := StratifiedKFold(group, e.NFolds, uint32(rep))
		if err != nil {
			return 0, 0, 0, err
		}
		foldORs, err := dispatchFolds(len(folds), func(k int) (float64, error) {
			return foldOddsRatio(x, y, group, groupCol, folds[k], e.Params, e.Perturbation)
		})
		if err != nil {
			return 0, 0, 0, fmt.Errorf("repetition %d: %w", rep, err)
		}
		repetitionORs = append(repetitionORs, repetitionOddsRatio(foldORs))
	}
	or, lower, upper = Aggregate(repetitionORs)
	return or, lower, upper, nil
}

// OddsRatioPerCohort estimates the odds ratio of every (treatment, group) pair of a cohort. Rows with a missing
// treatment or group value count as 0.
func (e *Experiment) OddsRatioPerCohort(data *frame.Frame, groups, treatments, confounders []string, cohort string) ([]Result, error) {
	results := []Result{}
	for _, treatment := range treatments {
		fmt.Println("Doing the prediction for treatment: ", treatment)
		for _, group := range groups {
			fmt.Println("Group: ", group)
			features, groupCol := Features(confounders, treatments, treatment, group)
			or, lower, upper, err := e.Estimate(data, features, groupCol, treatment)
			if err != nil {
				return results, err
			}
			if math.IsNaN(or) {
				log.Println("No finite odds ratio for treatment ", treatment, " and group ", group, " in cohort ", cohort)
			}
			fmt.Printf("OR (95%% CI): %.3f (%.3f - %.3f)\n", or, lower, upper)
			results = append(results, Result{
				Cohort:    cohort,
				Group:     group,
				Treatment: treatment,
				OR:        or,
				Lower:     lower,
				Upper:     upper,
			})
		}
	}
	return results, nil
}
