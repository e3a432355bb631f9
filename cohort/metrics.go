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
	"fmt"

	"shapor/utils"
)

// Metrics summarises a cohort table.
type Metrics struct {
	NofPatients  int            // nr of patients in the table
	TypeCtr      map[string]int // nr of patients per cancer type, other included
	MultiTypeCtr int            // nr of patients with more than one cancer type
	OtherRows    int            // nr of diagnosis rows that match none of the cancer types
	MeanRows     float64        // mean nr of diagnosis rows per patient
}

// MetricsFromTable counts patients per cancer type and the number of patients with several cancer types.
func MetricsFromTable(t *Table) Metrics {
	m := Metrics{NofPatients: len(t.Patients), TypeCtr: map[string]int{}}
	rows := 0
	for _, p := range t.Patients {
		rows += p.NofDiagnoses
		m.OtherRows += p.OtherCount
		nofTypes := 0
		for i, flag := range p.Flags {
			if flag {
				m.TypeCtr[t.Types[i]]++
				nofTypes++
			}
		}
		if p.Other {
			m.TypeCtr[OtherType]++
		}
		if nofTypes > 1 {
			m.MultiTypeCtr++
		}
	}
	if m.NofPatients > 0 {
		m.MeanRows = float64(rows) / float64(m.NofPatients)
	}
	return m
}

// PrintTable prints a summary of a cohort table and its first patients to standard output.
func PrintTable(t *Table, max int) {
	m := MetricsFromTable(t)
	fmt.Println("Cohort table: ", m.NofPatients, " patients, ", fmt.Sprintf("%.2f", m.MeanRows),
		" cancer diagnoses per patient, ", m.MultiTypeCtr, " patients with more than one cancer type.")
	fmt.Println("Diagnoses without a mapped cancer type: ", m.OtherRows)
	for _, c := range t.Columns() {
		fmt.Println(c, ": ", m.TypeCtr[c], " patients")
	}
	for i := 0; i < utils.MinInt(len(t.Patients), max); i++ {
		p := t.Patients[i]
		fmt.Print(t.IDColumn, " ", p.PIDString, ": ")
		for _, c := range t.Columns() {
			if t.Indicator(p, c) == 1 {
				fmt.Print(c, " ")
			}
		}
		fmt.Println("")
	}
}
