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
	"runtime"
	"strings"

	"shapor/boost"
	"shapor/cohort"
	"shapor/frame"
	"shapor/oddsratio"
	"shapor/utils"
)

// CohortParams are the parameters of the cohort builder.
type CohortParams struct {
	// required parameters
	Diagnoses string // path to the diagnosis table (patient identifier, icd_10)
	CodeMap   string // path to the icd_10,cancer_type table
	Output    string // path of the cohort table to write
	Dataset   string // MIMIC or eICU, determines the patient identifier column

	// optional parameters
	Filters     string // comma separated diagnosis filters, see GetDiagnosisFilter
	PatientList string // path to a list of patient identifiers for the patients filter
	NrOfThreads int
}

// recoverRun turns a panic into an error.
func recoverRun(err *error) {
	if r := recover(); r != nil {
		fmt.Println("Recovered from panic: ", r)
		*err = fmt.Errorf("run failed: %v", r)
	}
}

// RunCohortBuilder builds the cancer cohort table from a diagnosis table and a cancer code map.
func RunCohortBuilder(args *CohortParams) (err error) {
	defer recoverRun(&err)
	if args.NrOfThreads > 0 {
		runtime.GOMAXPROCS(args.NrOfThreads)
	}
	idColumn, err := PatientIDColumn(args.Dataset)
	if err != nil {
		return err
	}
	var pids map[string]bool
	if args.PatientList != "" {
		if pids, err = readPatientList(args.PatientList, idColumn); err != nil {
			return err
		}
	}
	filters, err := GetDiagnosisFilters(args.Filters, pids)
	if err != nil {
		return err
	}
	codeMap, err := ParseCancerCodeMap(args.CodeMap)
	if err != nil {
		return err
	}
	diagnoses, err := ParseDiagnoses(args.Diagnoses, idColumn)
	if err != nil {
		return err
	}
	diagnoses = cohort.ApplyDiagnosisFilters(filters, diagnoses)
	fmt.Println("Before grouping by patient, N = ", len(diagnoses))
	table := cohort.Build(diagnoses, codeMap, idColumn)
	fmt.Println("After grouping by patient, N = ", len(table.Patients))
	cohort.PrintTable(table, 10)
	return utils.WriteWithRetry(args.Output, func(path string) error {
		return WriteCohortTable(table, path)
	})
}

// Config holds the configuration lists of the odds ratio estimation.
type Config struct {
	Treatments  []string
	Confounders []string
	Cohorts     []string
	CancerTypes []string
}

// ReadConfig reads treatments.txt, confounders.txt, cohorts.txt and cancer_types.txt from a directory. The cancer
// types are only required when the cancer_type cohort is requested.
func ReadConfig(dir string) (*Config, error) {
	config := &Config{}
	var err error
	if config.Treatments, err = ReadConfigList(filepath.Join(dir, "treatments.txt"), "treatment"); err != nil {
		return nil, err
	}
	if config.Confounders, err = ReadConfigList(filepath.Join(dir, "confounders.txt"), "confounder"); err != nil {
		return nil, err
	}
	if config.Cohorts, err = ReadConfigList(filepath.Join(dir, "cohorts.txt"), "cohorts"); err != nil {
		return nil, err
	}
	if utils.MemberString(CancerType, config.Cohorts) {
		if config.CancerTypes, err = ReadConfigList(filepath.Join(dir, "cancer_types.txt"), "cancer_type"); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// OddsParams are the parameters of the odds ratio estimation.
type OddsParams struct {
	// required parameters
	ConfigDir  string // directory with the configuration lists
	DataDir    string // directory with the merged cohort tables
	ResultsDir string // results are written to ResultsDir/models

	// optional parameters
	Databases    []string
	NFolds       int
	NRep         int
	Params       boost.Params
	Perturbation boost.Perturbation
	Parquet      bool // also write the results as parquet
	NrOfThreads  int
}

// skipCohort reports if a cohort preparation error only affects that cohort.
func skipCohort(err error) bool {
	return errors.Is(err, ErrMissingConfounders) || errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, frame.ErrNameCollision)
}

// runDatabase estimates the odds ratios of all cohorts of one database source.
func runDatabase(exp *oddsratio.Experiment, config *Config, definitions []CohortDefinition, dataDir, db string) ([]oddsratio.Result, error) {
	results := []oddsratio.Result{}
	tables := map[string]*frame.Frame{}
	for _, def := range definitions {
		if !def.AllPatients {
			fmt.Println("Getting data for cancer type: ", def.Group)
		}
		file, err := def.TableFile(dataDir, db)
		if err != nil {
			return results, err
		}
		data, ok := tables[file]
		if !ok {
			if data, err = frame.ReadCSV(file); err != nil {
				return results, err
			}
			tables[file] = data
		}
		prepared, err := prepareCohort(data, config.Confounders, config.Treatments, def.Group)
		if err != nil {
			if skipCohort(err) {
				log.Println("Skipping cohort ", def.Label, ": ", err)
				continue
			}
			return results, err
		}
		cohortResults, err := exp.OddsRatioPerCohort(prepared.data, []string{prepared.group}, prepared.treatments,
			prepared.confounders, def.Label)
		if err != nil {
			return results, err
		}
		results = append(results, cohortResults...)
	}
	return results, nil
}

// writeResults writes the results of a database source to ResultsDir/models.
func writeResults(args *OddsParams, db string, results []oddsratio.Result) error {
	base := filepath.Join(args.ResultsDir, "models", oddsratio.ResultsFileName(db))
	if err := utils.WriteWithRetry(base+".csv", func(path string) error {
		return oddsratio.WriteResultsCSV(path, results)
	}); err != nil {
		return err
	}
	fmt.Println("Written ", len(results), " results to ", base+".csv")
	if !args.Parquet {
		return nil
	}
	return utils.WriteWithRetry(base+".parquet", func(path string) error {
		return oddsratio.WriteResultsParquet(path, results)
	})
}

// RunOddsRatios estimates the odds ratios of all treatments for every database source and cohort, and writes one
// results table per database source. A failing database source does not stop the others; the first error is
// returned.
func RunOddsRatios(args *OddsParams) (err error) {
	defer recoverRun(&err)
	if args.NrOfThreads > 0 {
		runtime.GOMAXPROCS(args.NrOfThreads)
	}
	if err := CheckDatabases(args.Databases); err != nil {
		return err
	}
	config, err := ReadConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	definitions := CohortDefinitions(config.Cohorts, config.CancerTypes)
	exp := &oddsratio.Experiment{NFolds: args.NFolds, NRep: args.NRep, Params: args.Params, Perturbation: args.Perturbation}
	var firstErr error
	for _, db := range args.Databases {
		fmt.Println(strings.Repeat("#", 30), " ", db, " ", strings.Repeat("#", 30))
		results, err := runDatabase(exp, config, definitions, args.DataDir, db)
		if err == nil {
			err = writeResults(args, db, results)
		}
		if err != nil {
			log.Println("Database ", db, " failed: ", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
