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
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"shapor/boost"
	"shapor/frame"
	"shapor/utils"
)

func TestStratifiedKFold(t *testing.T) {
	groups := make([]float64, 103)
	for i := range groups {
		if i%4 == 0 {
			groups[i] = 1
		}
	}
	folds, err := StratifiedKFold(groups, 5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(folds) != 5 {
		t.Fatalf("got %d folds", len(folds))
	}
	seen := make([]int, len(groups))
	for _, fold := range folds {
		if len(fold) < 20 || len(fold) > 21 {
			t.Errorf("unbalanced fold size %d", len(fold))
		}
		members := 0
		for _, row := range fold {
			seen[row]++
			if groups[row] == 1 {
				members++
			}
		}
		if members < 5 || members > 6 {
			t.Errorf("fold has %d group members, want 5 or 6", members)
		}
	}
	for row, ctr := range seen {
		if ctr != 1 {
			t.Fatalf("row %d occurs in %d folds", row, ctr)
		}
	}
	again, _ := StratifiedKFold(groups, 5, 3)
	other, _ := StratifiedKFold(groups, 5, 4)
	same, differs := true, false
	for k := range folds {
		for i := range folds[k] {
			if i >= len(again[k]) || again[k][i] != folds[k][i] {
				same = false
			}
			if i >= len(other[k]) || other[k][i] != folds[k][i] {
				differs = true
			}
		}
	}
	if !same {
		t.Errorf("equal seeds must give equal folds")
	}
	if !differs {
		t.Errorf("different seeds should give different folds")
	}
}

func TestStratifiedKFoldErrors(t *testing.T) {
	if _, err := StratifiedKFold([]float64{0, 1, 0}, 5, 0); !errors.Is(err, ErrTooFewRows) {
		t.Errorf("expected ErrTooFewRows, got %v", err)
	}
	if _, err := StratifiedKFold([]float64{0, 1, 0}, 1, 0); err == nil {
		t.Errorf("expected an error for a single fold")
	}
}

func TestFoldOddsRatio(t *testing.T) {
	phi := []float64{1, 3, -1, -1, 0.5}
	group := []float64{1, 1, 0, 0, 2}
	got := FoldOddsRatio(phi, group)
	want := math.Exp(2) / math.Exp(-1)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("FoldOddsRatio = %v, want %v", got, want)
	}
	if !math.IsNaN(FoldOddsRatio([]float64{1, 2}, []float64{1, 1})) {
		t.Errorf("expected NaN when there are no non-members")
	}
}

func TestDispatchFallback(t *testing.T) {
	var failed atomic.Bool
	task := func(k int) (float64, error) {
		if k == 1 && !failed.Swap(true) {
			panic("worker died")
		}
		return float64(k), nil
	}
	results, err := dispatchFolds(4, task)
	if err != nil {
		t.Fatalf("fallback should have recovered: %v", err)
	}
	for k, r := range results {
		if r != float64(k) {
			t.Errorf("result %d = %v", k, r)
		}
	}
	_, err = dispatchFolds(4, func(k int) (float64, error) {
		if k == 2 {
			return 0, errors.New("always fails")
		}
		return 1, nil
	})
	if !errors.Is(err, ErrDispatch) {
		t.Errorf("expected ErrDispatch, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	or, lower, upper := Aggregate([]float64{1.4, math.NaN(), 1.0, 1.2, math.Inf(1), 2.0})
	if !(lower <= or && or <= upper) {
		t.Errorf("interval not ordered: %v %v %v", lower, or, upper)
	}
	if math.Abs(or-1.3) > 1e-12 {
		t.Errorf("median = %v, want 1.3", or)
	}
	if math.Abs(lower-1.015) > 1e-12 || math.Abs(upper-1.955) > 1e-12 {
		t.Errorf("interval = [%v, %v], want [1.015, 1.955]", lower, upper)
	}
	or, lower, upper = Aggregate([]float64{math.NaN()})
	if !math.IsNaN(or) || !math.IsNaN(lower) || !math.IsNaN(upper) {
		t.Errorf("expected NaN estimates without finite values")
	}
	if v := repetitionOddsRatio([]float64{math.NaN(), 2, 4}); v != 3 {
		t.Errorf("repetition mean = %v, want 3", v)
	}
	if v := repetitionOddsRatio([]float64{math.NaN()}); !math.IsNaN(v) {
		t.Errorf("repetition mean = %v, want NaN", v)
	}
}

func TestFeatures(t *testing.T) {
	features, groupCol := Features([]string{"age", "sex"}, []string{"ventilation", "dialysis", "age"}, "dialysis", "has_cancer")
	want := []string{"age", "sex", "ventilation", "has_cancer"}
	if len(features) != len(want) || groupCol != 3 {
		t.Fatalf("Features = %v, %d", features, groupCol)
	}
	for i := range want {
		if features[i] != want[i] {
			t.Fatalf("Features = %v, want %v", features, want)
		}
	}
}

func syntheticCohort(n int) *frame.Frame {
	var rng fastrand.RNG
	rng.Seed(42)
	group := make([]float64, n)
	age := make([]float64, n)
	treatment := make([]float64, n)
	for i := 0; i < n; i++ {
		age[i] = float64(40 + rng.Uint32n(50))
		p := uint32(20)
		if i%2 == 0 {
			group[i] = 1
			p = 80
		} else {
			group[i] = math.NaN()
		}
		if rng.Uint32n(100) < p {
			treatment[i] = 1
		}
	}
	f := frame.New(n)
	_ = f.AddNumeric("age", age)
	_ = f.AddNumeric("has_cancer", group)
	_ = f.AddNumeric("dialysis", treatment)
	return f
}

func TestOddsRatioPerCohort(t *testing.T) {
	params := boost.DefaultParams()
	params.NEstimators = 20
	e := &Experiment{NFolds: 4, NRep: 3, Params: params}
	results, err := e.OddsRatioPerCohort(syntheticCohort(400), []string{"has_cancer"}, []string{"dialysis"}, []string{"age"}, "cancer_vs_others")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Cohort != "cancer_vs_others" || r.Group != "has_cancer" || r.Treatment != "dialysis" {
		t.Errorf("unexpected result labels %+v", r)
	}
	if !(r.Lower <= r.OR && r.OR <= r.Upper) {
		t.Errorf("interval not ordered: %+v", r)
	}
	if r.OR <= 1 {
		t.Errorf("group members are treated more often, expected an odds ratio above 1, got %v", r.OR)
	}
}

func TestWriteResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results", "models")
	results := []Result{
		{Cohort: "cancer_vs_others", Group: "has_cancer", Treatment: "dialysis", OR: 1.5, Lower: 1.2, Upper: 1.9},
		{Cohort: "lung_vs_others", Group: "lung", Treatment: "dialysis", OR: 0.9, Lower: 0.7, Upper: 1.1},
		{Cohort: "lung_vs_others", Group: "lung", Treatment: "ecmo", OR: math.NaN(), Lower: math.NaN(), Upper: math.NaN()},
	}
	csvPath := filepath.Join(dir, ResultsFileName("all")+".csv")
	if err := utils.WriteWithRetry(csvPath, func(path string) error { return WriteResultsCSV(path, results) }); err != nil {
		t.Fatalf("WriteWithRetry: %v", err)
	}
	content, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 4 || lines[0] != "cohort,group,treatment,OR,2.5%,97.5%" {
		t.Fatalf("unexpected CSV output:\n%s", content)
	}
	if lines[1] != "cancer_vs_others,has_cancer,dialysis,1.5,1.2,1.9" {
		t.Errorf("unexpected CSV row %q", lines[1])
	}
	if lines[3] != "lung_vs_others,lung,ecmo,,," {
		t.Errorf("missing estimates should be empty cells, got %q", lines[3])
	}
	parquetPath := filepath.Join(dir, ResultsFileName("all")+".parquet")
	if err := WriteResultsParquet(parquetPath, results); err != nil {
		t.Fatal(err)
	}
	rows, err := parquet.ReadFile[Result](parquetPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1].Group != "lung" || rows[0].Upper != 1.9 || !math.IsNaN(rows[2].OR) {
		t.Errorf("unexpected parquet rows %+v", rows)
	}
}

func TestDesignKeepsGroupValues(t *testing.T) {
	f := frame.New(4)
	_ = f.AddNumeric("age", []float64{50, 60, 70, 80})
	_ = f.AddNumeric("stage", []float64{0, 1, 3, math.NaN()})
	_ = f.AddNumeric("dialysis", []float64{1, math.NaN(), 0, 1})
	features, groupCol := Features([]string{"age"}, []string{"dialysis"}, "dialysis", "stage")
	x, y, group, err := design(f, features, groupCol, "dialysis")
	if err != nil {
		t.Fatal(err)
	}
	if x.At(2, groupCol) != 3 || !math.IsNaN(x.At(3, groupCol)) {
		t.Errorf("group column of the feature matrix was altered: %v", mat.Col(nil, groupCol, x))
	}
	if !floats.Equal(group, []float64{0, 1, 1, 0}) {
		t.Errorf("group membership = %v", group)
	}
	if !floats.Equal(y, []float64{1, 0, 0, 1}) {
		t.Errorf("treatment outcome = %v", y)
	}
}

func TestOddsRatioPerturbation(t *testing.T) {
	f := syntheticCohort(200)
	features, groupCol := Features([]string{"age"}, []string{"dialysis"}, "dialysis", "has_cancer")
	x, y, group, err := design(f, features, groupCol, "dialysis")
	if err != nil {
		t.Fatal(err)
	}
	params := boost.DefaultParams()
	params.NEstimators = 10
	clf, err := boost.Fit(x, y, params)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []boost.Perturbation{boost.Interventional, boost.TreePathDependent} {
		var phi *mat.Dense
		if p == boost.Interventional {
			phi, _, err = clf.ExplainInterventional(x, x)
		} else {
			phi, _, err = clf.Explain(x)
		}
		if err != nil {
			t.Fatal(err)
		}
		want := FoldOddsRatio(mat.Col(nil, groupCol, phi), group)
		got, err := OddsRatio(x, y, group, groupCol, params, p)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%v: odds ratio %v, want %v", p, got, want)
		}
	}
	var e Experiment
	if e.Perturbation != boost.Interventional {
		t.Errorf("default perturbation is %v", e.Perturbation)
	}
}
