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
	"os"
	"strconv"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"
)

// ResultsFileName returns the name of the results table of a database source, without extension.
func ResultsFileName(db string) string {
	return "xgb_cv_all_coh_" + db
}

// csvFloat is an estimate in a CSV table. NaN is written as an empty cell.
type csvFloat float64

func (f csvFloat) MarshalCSV() (string, error) {
	if math.IsNaN(float64(f)) {
		return "", nil
	}
	return strconv.FormatFloat(float64(f), 'f', -1, 64), nil
}

type csvResult struct {
	Cohort    string   `csv:"cohort"`
	Group     string   `csv:"group"`
	Treatment string   `csv:"treatment"`
	OR        csvFloat `csv:"OR"`
	Lower     csvFloat `csv:"2.5%"`
	Upper     csvFloat `csv:"97.5%"`
}

// WriteResultsCSV writes results as a CSV table with columns cohort, group, treatment, OR, 2.5% and 97.5%. Missing
// estimates are left empty.
func WriteResultsCSV(path string, results []Result) error {
	rows := make([]csvResult, len(results))
	for i, r := range results {
		rows[i] = csvResult{
			Cohort:    r.Cohort,
			Group:     r.Group,
			Treatment: r.Treatment,
			OR:        csvFloat(r.OR),
			Lower:     csvFloat(r.Lower),
			Upper:     csvFloat(r.Upper),
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	if err := gocsv.Marshal(&rows, file); err != nil {
		file.Close()
		return pfx.Err(err)
	}
	if err := file.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// WriteResultsParquet writes results as a snappy compressed parquet file with the same columns as the CSV table.
func WriteResultsParquet(path string, results []Result) error {
	file, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}
	writer := parquet.NewGenericWriter[Result](file, parquet.Compression(&parquet.Snappy))
	if _, err := writer.Write(results); err != nil {
		file.Close()
		return pfx.Err(err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return pfx.Err(err)
	}
	if err := file.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
