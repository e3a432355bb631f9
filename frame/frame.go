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

// Package frame implements a small column-oriented table for cohort feature data: numeric columns with missing
// values, text (categorical) columns, selection, one-hot expansion and name sanitisation.
package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownColumn is returned when a column that is not part of the frame is requested.
var ErrUnknownColumn = errors.New("unknown column")

// Column is a single named column. Numeric columns store NaN for missing values. Text columns keep their raw values
// in Text ("" when missing) and have all Values set to NaN.
type Column struct {
	Name   string
	Values []float64
	Text   []string
	IsText bool
}

// Frame is a table of equally long columns, kept in insertion order.
type Frame struct {
	names []string
	cols  map[string]*Column
	nrows int
}

// New creates an empty frame for nrows rows.
func New(nrows int) *Frame {
	return &Frame{cols: map[string]*Column{}, nrows: nrows}
}

func (f *Frame) addColumn(c *Column) error {
	if _, ok := f.cols[c.Name]; ok {
		return fmt.Errorf("column %q occurs twice", c.Name)
	}
	if len(c.Values) != f.nrows {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, len(c.Values), f.nrows)
	}
	f.names = append(f.names, c.Name)
	f.cols[c.Name] = c
	return nil
}

// AddNumeric appends a numeric column.
func (f *Frame) AddNumeric(name string, values []float64) error {
	return f.addColumn(&Column{Name: name, Values: values})
}

// AddText appends a text column.
func (f *Frame) AddText(name string, values []string) error {
	nan := make([]float64, len(values))
	for i := range nan {
		nan[i] = math.NaN()
	}
	return f.addColumn(&Column{Name: name, Values: nan, Text: values, IsText: true})
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	return append([]string{}, f.names...)
}

// NRows returns the number of rows.
func (f *Frame) NRows() int {
	return f.nrows
}

// Has checks if the frame has a column with the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Missing returns the names that are not columns of the frame, in the order given.
func (f *Frame) Missing(names []string) []string {
	missing := []string{}
	for _, name := range names {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Select returns a frame with the given columns in the given order. Columns are shared with the receiver, not
// copied. A name that is listed twice is only selected once.
func (f *Frame) Select(names []string) (*Frame, error) {
	result := New(f.nrows)
	for _, name := range names {
		c, ok := f.cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		if result.Has(name) {
			continue
		}
		if err := result.addColumn(c); err != nil {
			return nil, pfx.Err(err)
		}
	}
	return result, nil
}

// TextColumns returns the names of the text columns in order.
func (f *Frame) TextColumns() []string {
	result := []string{}
	for _, name := range f.names {
		if f.cols[name].IsText {
			result = append(result, name)
		}
	}
	return result
}

func (f *Frame) numeric(name string) (*Column, error) {
	c, ok := f.cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	if c.IsText {
		return nil, pfx.Err(fmt.Errorf("column %s is not numeric", name))
	}
	return c, nil
}

// Float returns a copy of a numeric column.
func (f *Frame) Float(name string) ([]float64, error) {
	c, err := f.numeric(name)
	if err != nil {
		return nil, err
	}
	return append([]float64{}, c.Values...), nil
}

// Binary returns a numeric column as a 0/1 vector. Missing values and 0 map onto 0, any other value onto 1. This
// turns the positive-only flags of the cohort tables (1 or missing) into proper binary outcomes.
func (f *Frame) Binary(name string) ([]float64, error) {
	c, err := f.numeric(name)
	if err != nil {
		return nil, err
	}
	result := make([]float64, f.nrows)
	for i, v := range c.Values {
		if !math.IsNaN(v) && v != 0 {
			result[i] = 1
		}
	}
	return result, nil
}

// Matrix returns the given numeric columns as a rows x len(names) matrix. Missing values stay NaN.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if f.nrows == 0 || len(names) == 0 {
		return nil, pfx.Err(errors.New("empty feature matrix"))
	}
	m := mat.NewDense(f.nrows, len(names), nil)
	for j, name := range names {
		c, err := f.numeric(name)
		if err != nil {
			return nil, err
		}
		for i, v := range c.Values {
			m.Set(i, j, v)
		}
	}
	return m, nil
}
