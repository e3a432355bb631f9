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
	"fmt"
	"log"

	"github.com/exascience/pargo/parallel"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrFoldPanic wraps a panic raised while evaluating a fold.
	ErrFoldPanic = errors.New("fold evaluation panicked")
	// ErrDispatch is returned when fold evaluation fails under both schedulers.
	ErrDispatch = errors.New("fold dispatch failed")
)

// foldTask evaluates a single fold.
type foldTask func(fold int) (float64, error)

// runFold calls task and turns a panic into an error.
func runFold(task foldTask, fold int) (result float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: fold %d: %v", ErrFoldPanic, fold, p)
		}
	}()
	return task(fold)
}

// dispatchBounded evaluates the folds with at most limit folds running at the same time.
func dispatchBounded(nFolds, limit int, task foldTask) ([]float64, error) {
	results := make([]float64, nFolds)
	var g errgroup.Group
	g.SetLimit(limit)
	for k := 0; k < nFolds; k++ {
		k := k
		g.Go(func() (err error) {
			results[k], err = runFold(task, k)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dispatchUnbounded evaluates the folds with pargo, using as many goroutines as GOMAXPROCS allows.
func dispatchUnbounded(nFolds int, task foldTask) ([]float64, error) {
	results := make([]float64, nFolds)
	errs := make([]error, nFolds)
	parallel.Range(0, nFolds, 0, func(low, high int) {
		for k := low; k < high; k++ {
			results[k], errs[k] = runFold(task, k)
		}
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

// dispatchFolds evaluates all folds of a repetition, at most nFolds at a time. When that fails for any reason, the
// whole repetition is evaluated once more without the bound. A second failure is returned.
func dispatchFolds(nFolds int, task foldTask) ([]float64, error) {
	results, err := dispatchBounded(nFolds, nFolds, task)
	if err == nil {
		return results, nil
	}
	log.Println("Fold evaluation failed, retrying with all available threads: ", err)
	results, err = dispatchUnbounded(nFolds, task)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	return results, nil
}
