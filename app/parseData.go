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

package app

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"

	"shapor/cohort"
	"shapor/utils"
)

var (
	// ErrUnknownDataset is returned for a dataset name that does not determine a patient identifier column.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrMissingColumn is returned when an input table lacks a required column.
	ErrMissingColumn = errors.New("missing column")
	// ErrConfigHeader is returned when a configuration list does not contain its header entry.
	ErrConfigHeader = errors.New("configuration list header not found")
)

// ICD10Column is the name of the diagnosis code column of the diagnosis tables and the cancer code map.
const ICD10Column = "icd_10"

// PatientIDColumn returns the patient identifier column of a dataset: subject_id for MIMIC, patientunitstayid for
// eICU. Any other dataset name is an error.
func PatientIDColumn(dataset string) (string, error) {
	switch dataset {
	case "MIMIC":
		return "subject_id", nil
	case "eICU":
		return "patientunitstayid", nil
	default:
		return "", fmt.Errorf("%w: %q, should be MIMIC or eICU", ErrUnknownDataset, dataset)
	}
}

// columnIndex returns the position of a column in a header line.
func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// ParseDiagnoses parses a diagnosis table with a header line. Only the patient identifier column and the icd_10
// column are used; they can be anywhere in the table. Rows without patient identifier are skipped.
func ParseDiagnoses(file, idColumn string) ([]*cohort.Diagnosis, error) {
	reader, closer, err := utils.NewCSVReader(file)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	header, err := reader.Read()
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("header parsing error in %s: %w", file, err))
	}
	idIdx, codeIdx := columnIndex(header, idColumn), columnIndex(header, ICD10Column)
	if idIdx < 0 {
		return nil, fmt.Errorf("%w: %s has no column %s", ErrMissingColumn, file, idColumn)
	}
	if codeIdx < 0 {
		return nil, fmt.Errorf("%w: %s has no column %s", ErrMissingColumn, file, ICD10Column)
	}
	diagnoses := []*cohort.Diagnosis{}
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", file, err))
		}
		if idIdx >= len(record) || strings.TrimSpace(record[idIdx]) == "" {
			skipped++
			continue
		}
		code := ""
		if codeIdx < len(record) {
			code = strings.TrimSpace(record[codeIdx])
		}
		diagnoses = append(diagnoses, &cohort.Diagnosis{PatientID: strings.TrimSpace(record[idIdx]), ICD10: code})
	}
	fmt.Println("Parsed ", len(diagnoses), " diagnoses from ", file, ", skipped ", skipped, " rows without ", idColumn)
	return diagnoses, nil
}

// ParseCancerCodeMap parses the icd_10,cancer_type table mapping ICD-10 codes onto cancer types.
func ParseCancerCodeMap(file string) (cohort.CodeMap, error) {
	reader, closer, err := utils.NewCSVReader(file)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	entries := []cohort.CodeMapEntry{}
	if err := gocsv.UnmarshalCSV(reader, &entries); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", file, err))
	}
	codeMap := cohort.CodeMap{}
	for _, e := range entries {
		e.ICD10, e.CancerType = strings.TrimSpace(e.ICD10), strings.TrimSpace(e.CancerType)
		if e.ICD10 == "" || e.CancerType == "" {
			continue
		}
		codeMap = append(codeMap, e)
	}
	if len(codeMap) == 0 {
		return nil, pfx.Err(fmt.Errorf("%s: no cancer code mappings", file))
	}
	fmt.Println("Parsed ", len(codeMap), " ICD-10 codes of ", len(codeMap.Types()), " cancer types.")
	return codeMap, nil
}

// WriteCohortTable writes a cohort table as CSV: the patient identifier, one column per cancer type and other.
// Indicators are written as 1, absent ones as an empty cell.
func WriteCohortTable(table *cohort.Table, file string) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return pfx.Err(err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = pfx.Err(cerr)
		}
	}()
	writer := csv.NewWriter(f)
	columns := table.Columns()
	if err := writer.Write(append([]string{table.IDColumn}, columns...)); err != nil {
		return pfx.Err(err)
	}
	record := make([]string, len(columns)+1)
	for _, p := range table.Patients {
		record[0] = p.PIDString
		for i, c := range columns {
			if table.Indicator(p, c) == 1 {
				record[i+1] = "1"
			} else {
				record[i+1] = ""
			}
		}
		if err := writer.Write(record); err != nil {
			return pfx.Err(err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// ReadConfigList reads a configuration list: a text file with one entry per line. The entry equal to header is
// removed, and so are blank lines. A list without header entry is an error.
func ReadConfigList(file, header string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()
	entries := []string{}
	foundHeader := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" {
			continue
		}
		if entry == header && !foundHeader {
			foundHeader = true
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}
	if !foundHeader {
		return nil, fmt.Errorf("%w: %s does not list %q", ErrConfigHeader, file, header)
	}
	return entries, nil
}

// readPatientList reads a list of patient identifiers, one per line, with a header line.
func readPatientList(file, header string) (map[string]bool, error) {
	ids, err := ReadConfigList(file, header)
	if err != nil {
		return nil, err
	}
	result := map[string]bool{}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}
