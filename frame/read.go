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
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"

	"shapor/utils"
)

// missingValues are the cell values read as missing.
var missingValues = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true, "-nan": true, "-NaN": true,
	"null": true, "NULL": true, "None": true, "<NA>": true, "#N/A": true,
}

// parseCell parses a cell as a number. Booleans are read as 1/0. The second result reports if the cell is missing,
// the third if it is numeric.
func parseCell(s string) (float64, bool, bool) {
	s = strings.TrimSpace(s)
	if missingValues[s] {
		return math.NaN(), true, true
	}
	switch s {
	case "True", "TRUE", "true":
		return 1, false, true
	case "False", "FALSE", "false":
		return 0, false, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false, false
	}
	return v, false, true
}

// mangleHeader makes duplicate column names unique by suffixing them with .1, .2, ...
func mangleHeader(header []string) []string {
	result := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		name := h
		for {
			ctr, ok := seen[name]
			if !ok {
				break
			}
			seen[name] = ctr + 1
			name = fmt.Sprintf("%s.%d", h, ctr+1)
		}
		seen[name] = 0
		result[i] = name
	}
	return result
}

// FromRecords builds a frame from a header and string rows. A column is numeric when all its present cells parse as
// numbers, otherwise it is a text column.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	header = mangleHeader(header)
	f := New(len(rows))
	for j, name := range header {
		values := make([]float64, len(rows))
		text := make([]string, len(rows))
		isText := false
		for i, row := range rows {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			v, missing, numeric := parseCell(cell)
			values[i] = v
			if !missing {
				text[i] = strings.TrimSpace(cell)
			}
			if !numeric {
				isText = true
			}
		}
		var err error
		if isText {
			err = f.AddText(name, text)
		} else {
			err = f.AddNumeric(name, values)
		}
		if err != nil {
			return nil, pfx.Err(err)
		}
	}
	return f, nil
}

// ReadCSV reads a delimited table with a header line. The delimiter is detected and compressed files are
// decompressed on the fly.
func ReadCSV(path string) (*Frame, error) {
	reader, closer, err := utils.NewCSVReader(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	header, err := reader.Read()
	if err == io.EOF {
		return nil, pfx.Err(fmt.Errorf("%s: empty table", path))
	}
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("header parsing error in %s: %w", path, err))
	}
	rows := [][]string{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}
		rows = append(rows, record)
	}
	return FromRecords(header, rows)
}
