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
	"fmt"
	"log"
	"strings"

	"shapor/cohort"
)

// GetDiagnosisFilter maps a filter name onto a diagnosis filter:
//   - malignant: ICD-10 codes of malignant neoplasms only
//   - patients: diagnoses of the patients in pids only
//   - all: no filtering
//
// Unknown names are reported and ignored.
func GetDiagnosisFilter(filter string, pids map[string]bool) (cohort.DiagnosisFilter, error) {
	id := func(d *cohort.Diagnosis) bool { return true }
	switch filter {
	case "malignant":
		return cohort.MalignantNeoplasmFilter(), nil
	case "patients":
		if pids == nil {
			return nil, fmt.Errorf("the patients filter requires a patient list")
		}
		return cohort.PatientFilter(pids), nil
	case "all", "":
		return id, nil
	default:
		log.Println("Unknown diagnosis filter ", filter, ", ignoring it.")
		return id, nil
	}
}

// GetDiagnosisFilters turns a comma separated list of filter names into filters, see GetDiagnosisFilter.
func GetDiagnosisFilters(filters string, pids map[string]bool) ([]cohort.DiagnosisFilter, error) {
	var result []cohort.DiagnosisFilter
	for _, f := range strings.Split(filters, ",") {
		trimmed := strings.Trim(f, " ")
		filter, err := GetDiagnosisFilter(trimmed, pids)
		if err != nil {
			return nil, err
		}
		result = append(result, filter)
	}
	return result, nil
}
