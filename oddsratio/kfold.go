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
	"sort"

	"github.com/carbocation/pfx"
	"github.com/valyala/fastrand"
)

// ErrTooFewRows is returned when a table has fewer rows than requested folds.
var ErrTooFewRows = errors.New("fewer rows than folds")

// StratifiedKFold splits the rows 0..len(groups)-1 into nFolds folds so that every fold keeps the proportion of each
// group value. The rows of every group value are shuffled with a RNG seeded by seed, then dealt over the folds in
// turn, continuing where the previous group value left off, so fold sizes differ by at most one. Every row ends up
// in exactly one fold, and the rows of a fold are in ascending order.
func StratifiedKFold(groups []float64, nFolds int, seed uint32) ([][]int, error) {
	if nFolds < 2 {
		return nil, pfx.Err(fmt.Errorf("nr of folds must be at least 2, got %d", nFolds))
	}
	if len(groups) < nFolds {
		return nil, fmt.Errorf("%w: %d rows, %d folds", ErrTooFewRows, len(groups), nFolds)
	}
	classes := map[float64][]int{}
	for i, g := range groups {
		classes[g] = append(classes[g], i)
	}
	labels := make([]float64, 0, len(classes))
	for label, rows := range classes {
		labels = append(labels, label)
		if len(rows) < nFolds {
			log.Printf("Warning: group value %v has only %d rows, fewer than the %d folds.", label, len(rows), nFolds)
		}
	}
	sort.Float64s(labels)
	var rng fastrand.RNG
	// fastrand picks a random seed for 0
	rng.Seed(seed + 1)
	folds := make([][]int, nFolds)
	next := 0
	for _, label := range labels {
		rows := classes[label]
		for i := len(rows) - 1; i > 0; i-- {
			j := int(rng.Uint32n(uint32(i + 1)))
			rows[i], rows[j] = rows[j], rows[i]
		}
		for _, row := range rows {
			folds[next] = append(folds[next], row)
			next = (next + 1) % nFolds
		}
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds, nil
}
