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

import (
	"math"
	"sort"
	"strconv"

	"github.com/exascience/pargo/parallel"
)

// OtherType is the name of the indicator column for patients without any of the mapped cancer types.
const OtherType = "other"

// Diagnosis represents a single row of a diagnosis table: one ICD-10 code recorded for a patient. Patients usually
// have many rows.
type Diagnosis struct {
	PatientID string // patient identifier as it occurs in the input, e.g. subject_id in MIMIC
	ICD10     string // ICD-10 code, e.g. C50.9
}

// CodeMapEntry maps an ICD-10 code (or code root) onto a cancer type.
type CodeMapEntry struct {
	ICD10      string `csv:"icd_10"`
	CancerType string `csv:"cancer_type"`
}

// CodeMap is the ordered ICD-10 -> cancer type mapping. A diagnosis matches an entry when the entry's code occurs
// anywhere in the diagnosis code, so "C50" matches "C50.9" and "C509".
type CodeMap []CodeMapEntry

// Types returns the unique cancer types of the map in order of first appearance.
func (m CodeMap) Types() []string {
	types := []string{}
	seen := map[string]bool{}
	for _, e := range m {
		if !seen[e.CancerType] {
			seen[e.CancerType] = true
			types = append(types, e.CancerType)
		}
	}
	return types
}

// Patient holds the aggregated cancer indicators of one patient.
type Patient struct {
	PIDString    string // ID from the input table
	Counts       []int  // per cancer type, nr of diagnosis rows matching that type
	OtherCount   int    // nr of diagnosis rows that match none of the cancer types
	Flags        []bool // per cancer type, true iff Counts >= 1
	Other        bool   // true iff none of Flags is set
	NofDiagnoses int    // nr of diagnosis rows aggregated into this patient
}

// Table is the patient-level cohort table: one row per patient, one indicator per cancer type plus other.
type Table struct {
	IDColumn  string         // name of the patient identifier column
	Types     []string       // cancer types, in code map order
	Patients  []*Patient     // sorted by patient ID
	typeIndex map[string]int // cancer type -> index in Types
}

// Indicator returns 1 when the patient has the given cancer type and NaN (missing) otherwise. Asking for OtherType
// returns the other indicator. Indicators are never 0: absence is encoded as missing.
func (t *Table) Indicator(p *Patient, cancerType string) float64 {
	if cancerType == OtherType {
		if p.Other {
			return 1
		}
		return math.NaN()
	}
	if i, ok := t.typeIndex[cancerType]; ok && p.Flags[i] {
		return 1
	}
	return math.NaN()
}

// Columns returns the indicator column names of the table: the cancer types followed by other.
func (t *Table) Columns() []string {
	return append(append([]string{}, t.Types...), OtherType)
}

// tagDiagnosis marks which cancer types a diagnosis code belongs to. Several map entries may share a cancer type; a
// match on any of them sets the type.
func tagDiagnosis(d *Diagnosis, codeMap CodeMap, typeIndex map[string]int, nofTypes int) []bool {
	tags := make([]bool, nofTypes)
	for _, e := range codeMap {
		if e.ICD10 != "" && containsCode(d.ICD10, e.ICD10) {
			tags[typeIndex[e.CancerType]] = true
		}
	}
	return tags
}

// Build computes the patient-level cohort table from diagnosis rows. Each row is tagged with the cancer types its code
// matches, rows are grouped per patient and the tags summed, and the sums are collapsed back to present (>= 1) or
// missing. A patient is flagged other iff none of its cancer type indicators is set.
func Build(diagnoses []*Diagnosis, codeMap CodeMap, idColumn string) *Table {
	types := codeMap.Types()
	typeIndex := map[string]int{}
	for i, t := range types {
		typeIndex[t] = i
	}
	tags := make([][]bool, len(diagnoses))
	parallel.Range(0, len(diagnoses), 0, func(low, high int) {
		for i := low; i < high; i++ {
			tags[i] = tagDiagnosis(diagnoses[i], codeMap, typeIndex, len(types))
		}
	})
	// group by patient and sum the indicators
	pMap := map[string]*Patient{}
	for i, d := range diagnoses {
		p, ok := pMap[d.PatientID]
		if !ok {
			p = &Patient{PIDString: d.PatientID, Counts: make([]int, len(types)), Flags: make([]bool, len(types))}
			pMap[d.PatientID] = p
		}
		p.NofDiagnoses++
		tagged := false
		for j, tag := range tags[i] {
			if tag {
				p.Counts[j]++
				tagged = true
			}
		}
		if !tagged {
			p.OtherCount++
		}
	}
	patients := make([]*Patient, 0, len(pMap))
	for _, p := range pMap {
		anyType := false
		for j, ctr := range p.Counts {
			p.Flags[j] = ctr >= 1
			anyType = anyType || p.Flags[j]
		}
		p.Other = !anyType
		patients = append(patients, p)
	}
	sortPatients(patients)
	return &Table{IDColumn: idColumn, Types: types, Patients: patients, typeIndex: typeIndex}
}

// sortPatients orders patients by ID. When all IDs are integers they are ordered numerically, otherwise
// lexicographically.
func sortPatients(patients []*Patient) {
	numeric := true
	ids := make([]int64, len(patients))
	for i, p := range patients {
		id, err := strconv.ParseInt(p.PIDString, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		ids[i] = id
	}
	if numeric {
		idOf := make(map[*Patient]int64, len(patients))
		for i, p := range patients {
			idOf[p] = ids[i]
		}
		sort.Slice(patients, func(i, j int) bool {
			return idOf[patients[i]] < idOf[patients[j]]
		})
		return
	}
	sort.Slice(patients, func(i, j int) bool {
		return patients[i].PIDString < patients[j].PIDString
	})
}
