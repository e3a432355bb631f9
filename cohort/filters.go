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

package cohort

import "strings"

// MalignantNeoplasmMarker is the ICD-10 chapter letter of malignant neoplasms (C00-C96).
const MalignantNeoplasmMarker = "C"

// DiagnosisFilter prescribes a function type for implementing filters on diagnosis rows, to be able to restrict the
// cohort builder to specific diagnoses. E.g. cancer codes only.
type DiagnosisFilter func(d *Diagnosis) bool

// containsCode checks if an ICD-10 code contains a code root.
func containsCode(code, root string) bool {
	return strings.Contains(code, root)
}

// ApplyDiagnosisFilters returns the diagnoses that pass all filters, preserving their order.
func ApplyDiagnosisFilters(filters []DiagnosisFilter, diagnoses []*Diagnosis) []*Diagnosis {
	result := []*Diagnosis{}
	for _, d := range diagnoses {
		keep := true
		for _, filter := range filters {
			if !filter(d) {
				keep = false
				break
			}
		}
		if keep {
			result = append(result, d)
		}
	}
	return result
}

// CodeFilter keeps diagnoses whose code contains the given marker. Rows without a code are removed.
func CodeFilter(marker string) DiagnosisFilter {
	return func(d *Diagnosis) bool {
		return d.ICD10 != "" && containsCode(d.ICD10, marker)
	}
}

// MalignantNeoplasmFilter keeps cancer diagnoses only.
func MalignantNeoplasmFilter() DiagnosisFilter {
	return CodeFilter(MalignantNeoplasmMarker)
}

// PatientFilter removes diagnoses of patients that are not in the given set of patient IDs.
func PatientFilter(pids map[string]bool) DiagnosisFilter {
	return func(d *Diagnosis) bool {
		return pids[d.PatientID]
	}
}
