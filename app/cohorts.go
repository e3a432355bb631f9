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
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"shapor/frame"
	"shapor/utils"
)

var (
	// ErrUnknownDatabase is returned for a database source other than all, eicu or mimic.
	ErrUnknownDatabase = errors.New("unknown database source")
	// ErrMissingConfounders is returned when a cohort table lacks some of the confounders.
	ErrMissingConfounders = errors.New("confounders missing from cohort table")
)

// Databases lists the database sources: the combined data and the eICU and MIMIC subsets.
var Databases = []string{"all", "eicu", "mimic"}

// cohortTables maps a database source onto its table with all patients and its table with cancer patients only.
var cohortTables = map[string][2]string{
	"all":   {"merged_all.csv", "merged_cancer.csv"},
	"eicu":  {"merged_eicu_all.csv", "merged_eicu_cancer.csv"},
	"mimic": {"merged_mimic_all.csv", "merged_mimic_cancer.csv"},
}

// CheckDatabases verifies that all database sources are known.
func CheckDatabases(dbs []string) error {
	for _, db := range dbs {
		if _, ok := cohortTables[db]; !ok {
			return fmt.Errorf("%w: %q, should be all, eicu or mimic", ErrUnknownDatabase, db)
		}
	}
	return nil
}

// Cohort definition names as they occur in the cohorts configuration list.
const (
	CancerVsNoCancer = "cancer_vs_nocancer"
	CancerType       = "cancer_type"
)

// CohortDefinition describes one cohort for the odds ratio estimation.
type CohortDefinition struct {
	Label       string // cohort label in the results, e.g. cancer_vs_others
	Group       string // binary column that splits the cohort
	AllPatients bool   // true: table with all patients, false: table with cancer patients only
}

// TableFile returns the cohort table of the definition for a database source.
func (d CohortDefinition) TableFile(dataDir, db string) (string, error) {
	tables, ok := cohortTables[db]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDatabase, db)
	}
	if d.AllPatients {
		return filepath.Join(dataDir, tables[0]), nil
	}
	return filepath.Join(dataDir, tables[1]), nil
}

// CohortDefinitions expands the configured cohort names. cancer_vs_nocancer compares cancer patients with all other
// patients, cancer_type compares each cancer type with the other cancer patients. Unknown names are logged and
// skipped.
func CohortDefinitions(cohorts, cancerTypes []string) []CohortDefinition {
	result := []CohortDefinition{}
	for _, c := range cohorts {
		switch c {
		case CancerVsNoCancer:
			result = append(result, CohortDefinition{Label: "cancer_vs_others", Group: "has_cancer", AllPatients: true})
		case CancerType:
			for _, t := range cancerTypes {
				result = append(result, CohortDefinition{Label: t + "_vs_others", Group: t})
			}
		default:
			log.Println("Error: ", c, " should be ", CancerVsNoCancer, " or ", CancerType, " or both of them")
		}
	}
	return result
}

// preparedCohort is a cohort table ready for modelling: numeric columns only and sanitized names.
type preparedCohort struct {
	data        *frame.Frame
	confounders []string
	treatments  []string
	group       string
}

// prepareCohort selects the confounder, treatment and group columns of a cohort table, expands the categorical
// columns into indicator columns and sanitizes all names. The confounders of the result are the numeric
// confounders followed by the generated indicator columns.
func prepareCohort(data *frame.Frame, confounders, treatments []string, group string) (*preparedCohort, error) {
	if missing := data.Missing(confounders); len(missing) > 0 {
		for _, c := range missing {
			fmt.Println("Column ", c, " not in table")
		}
		return nil, fmt.Errorf("%w: %v", ErrMissingConfounders, missing)
	}
	initial := append(append(append([]string{}, confounders...), treatments...), group)
	if missing := data.Missing(initial); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	selected, err := data.Select(initial)
	if err != nil {
		return nil, err
	}
	categorical := selected.TextColumns()
	fmt.Println("Converting categorical columns: ", categorical)
	var oneHot []string
	if len(categorical) > 0 {
		if selected, oneHot, err = selected.GetDummies(categorical); err != nil {
			return nil, err
		}
	}
	// categorical treatments or groups are expanded away and cannot be modelled
	targets := append(append([]string{}, treatments...), group)
	if missing := selected.Missing(targets); len(missing) > 0 {
		return nil, fmt.Errorf("%w: categorical treatment or group %v", ErrMissingColumn, missing)
	}
	updated := []string{}
	for _, c := range confounders {
		if !utils.MemberString(c, categorical) {
			updated = append(updated, c)
		}
	}
	updated = append(updated, oneHot...)
	sanitized, err := selected.Sanitize()
	if err != nil {
		return nil, err
	}
	result := &preparedCohort{data: sanitized, group: frame.SanitizeName(group)}
	if result.confounders, err = frame.SanitizeNames(updated); err != nil {
		return nil, err
	}
	if result.treatments, err = frame.SanitizeNames(treatments); err != nil {
		return nil, err
	}
	return result, nil
}
