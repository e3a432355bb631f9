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
	"testing"
)

var testCodeMap = CodeMap{
	{ICD10: "C50", CancerType: "breast"},
	{ICD10: "C34", CancerType: "lung"},
	{ICD10: "C33", CancerType: "lung"},
	{ICD10: "C61", CancerType: "prostate"},
}

func testDiagnoses() []*Diagnosis {
	return []*Diagnosis{
		{PatientID: "10", ICD10: "C50.9"},
		{PatientID: "2", ICD10: "C34.1"},
		{PatientID: "2", ICD10: "C33"},
		{PatientID: "2", ICD10: "C50.1"},
		{PatientID: "7", ICD10: "C91.0"},
		{PatientID: "10", ICD10: "C50.2"},
		{PatientID: "3", ICD10: "I10"},
		{PatientID: "4", ICD10: ""},
	}
}

func TestCodeMapTypes(t *testing.T) {
	types := testCodeMap.Types()
	want := []string{"breast", "lung", "prostate"}
	if len(types) != len(want) {
		t.Fatalf("Types() = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", types, want)
		}
	}
}

func TestMalignantNeoplasmFilter(t *testing.T) {
	diagnoses := ApplyDiagnosisFilters([]DiagnosisFilter{MalignantNeoplasmFilter()}, testDiagnoses())
	if len(diagnoses) != 6 {
		t.Fatalf("expected 6 cancer diagnoses, got %d", len(diagnoses))
	}
	for _, d := range diagnoses {
		if d.PatientID == "3" || d.PatientID == "4" {
			t.Errorf("diagnosis %v should have been filtered", d)
		}
	}
	kept := ApplyDiagnosisFilters([]DiagnosisFilter{PatientFilter(map[string]bool{"2": true})}, testDiagnoses())
	if len(kept) != 3 {
		t.Errorf("PatientFilter kept %d rows, want 3", len(kept))
	}
}

func TestBuild(t *testing.T) {
	diagnoses := ApplyDiagnosisFilters([]DiagnosisFilter{MalignantNeoplasmFilter()}, testDiagnoses())
	table := Build(diagnoses, testCodeMap, "subject_id")
	if len(table.Patients) != 3 {
		t.Fatalf("expected one row per patient, got %d rows", len(table.Patients))
	}
	// numeric ordering: 2 < 7 < 10
	order := []string{"2", "7", "10"}
	for i, pid := range order {
		if table.Patients[i].PIDString != pid {
			t.Fatalf("patient %d = %s, want %s", i, table.Patients[i].PIDString, pid)
		}
	}
	p2, p7, p10 := table.Patients[0], table.Patients[1], table.Patients[2]
	if table.Indicator(p2, "lung") != 1 || table.Indicator(p2, "breast") != 1 {
		t.Errorf("patient 2 should have lung and breast cancer")
	}
	if p2.Counts[1] != 2 {
		t.Errorf("both lung entries should count, got %d", p2.Counts[1])
	}
	if !math.IsNaN(table.Indicator(p2, "prostate")) || !math.IsNaN(table.Indicator(p2, OtherType)) {
		t.Errorf("absent indicators must be missing")
	}
	if table.Indicator(p7, OtherType) != 1 {
		t.Errorf("patient 7 has no mapped cancer and should be other")
	}
	if table.Indicator(p10, "breast") != 1 || !math.IsNaN(table.Indicator(p10, OtherType)) {
		t.Errorf("patient 10 should have breast cancer only")
	}
	for _, p := range table.Patients {
		anyType := false
		for _, flag := range p.Flags {
			anyType = anyType || flag
		}
		if anyType == p.Other {
			t.Errorf("other must be exclusive with the cancer type indicators for patient %s", p.PIDString)
		}
	}
	m := MetricsFromTable(table)
	if p7.OtherCount != 1 || p2.OtherCount != 0 {
		t.Errorf("unmapped rows: patient 7 has %d, patient 2 has %d", p7.OtherCount, p2.OtherCount)
	}
	if m.NofPatients != 3 || m.TypeCtr["breast"] != 2 || m.TypeCtr[OtherType] != 1 || m.MultiTypeCtr != 1 || m.OtherRows != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestBuildLexicalOrder(t *testing.T) {
	diagnoses := []*Diagnosis{
		{PatientID: "b", ICD10: "C61"},
		{PatientID: "a", ICD10: "C61"},
		{PatientID: "10", ICD10: "C61"},
	}
	table := Build(diagnoses, testCodeMap, "id")
	order := []string{"10", "a", "b"}
	for i, pid := range order {
		if table.Patients[i].PIDString != pid {
			t.Fatalf("patient %d = %s, want %s", i, table.Patients[i].PIDString, pid)
		}
	}
	cols := table.Columns()
	if cols[len(cols)-1] != OtherType || len(cols) != 4 {
		t.Errorf("Columns() = %v", cols)
	}
}
