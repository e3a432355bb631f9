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

package frame

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/carbocation/pfx"
)

// categoryLabel returns the label of a cell of a column to be expanded, and false when the cell is missing.
func categoryLabel(c *Column, i int) (string, bool) {
	if c.IsText {
		return c.Text[i], c.Text[i] != ""
	}
	v := c.Values[i]
	if math.IsNaN(v) {
		return "", false
	}
	return strconv.FormatFloat(v, 'g', -1, 64), true
}

// GetDummies expands the given columns into 0/1 indicator columns named <column>_<category>, one per distinct present
// value, with the categories of a column in sorted order. Missing cells are 0 in every indicator. The remaining
// columns keep their order and the indicators are appended after them. It returns the new frame and the names of the
// generated columns.
func (f *Frame) GetDummies(columns []string) (*Frame, []string, error) {
	expand := map[string]bool{}
	for _, name := range columns {
		if !f.Has(name) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		expand[name] = true
	}
	result := New(f.nrows)
	for _, name := range f.names {
		if expand[name] {
			continue
		}
		if err := result.addColumn(f.cols[name]); err != nil {
			return nil, nil, pfx.Err(err)
		}
	}
	generated := []string{}
	for _, name := range f.names {
		if !expand[name] {
			continue
		}
		c := f.cols[name]
		categories := []string{}
		seen := map[string]bool{}
		for i := 0; i < f.nrows; i++ {
			if label, ok := categoryLabel(c, i); ok && !seen[label] {
				seen[label] = true
				categories = append(categories, label)
			}
		}
		sort.Strings(categories)
		for _, category := range categories {
			values := make([]float64, f.nrows)
			for i := 0; i < f.nrows; i++ {
				if label, ok := categoryLabel(c, i); ok && label == category {
					values[i] = 1
				}
			}
			dummy := name + "_" + category
			if err := result.AddNumeric(dummy, values); err != nil {
				return nil, nil, pfx.Err(err)
			}
			generated = append(generated, dummy)
		}
	}
	return result, generated, nil
}
