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

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"shapor/app"
	"shapor/boost"
)

/*
Shapor builds cancer cohorts from ICD-10 coded diagnoses and estimates treatment odds ratios per cohort from the SHAP
values of boosted tree classifiers.

Usage:
	shapor cohort diagnosesFile codeMapFile resultFile [flags]
	shapor odds configDir dataDir resultsDir [flags]

Example:
	shapor cohort diagnoses_icd.csv.gz cancer_codes.csv data/cohorts/cancer_patients.csv --dataset MIMIC
	shapor odds config data/cohorts results --folds 8 --reps 5 --databases all,eicu,mimic --parquet

The cohort command:

The diagnoses file is a table with a header line that has (at least) a patient identifier column and an icd_10
column. The file may be compressed with gzip, zip, xz or bzip2 and may use any of , ; tab or | as delimiter. The code
map file is a table with columns icd_10 and cancer_type. The result is a table with one row per patient and one column
per cancer type plus the column other, where 1 marks the types a patient was diagnosed with and absent types are left
empty.

--dataset MIMIC | eICU
	Selects the patient identifier column: subject_id for MIMIC, patientunitstayid for eICU.
--filters malignant | patients | all
	A list of filters applied to the diagnoses before grouping them by patient. malignant keeps ICD-10 codes of
	malignant neoplasms only, patients keeps the patients listed in the file passed with --patients.
--patients file
	A file with one patient identifier per line, the first line being the name of the identifier column.

The odds command:

The config directory holds the lists treatments.txt, confounders.txt, cohorts.txt and cancer_types.txt, each with a
header line followed by one entry per line. The data directory holds the merged cohort tables per database source.
For every database source a table xgb_cv_all_coh_<db>.csv is written to the models directory in the results
directory.

--folds nr
	The number of stratified folds per repetition. A classifier is fit on each fold.
--reps nr
	The number of repetitions. The odds ratio is the median over the repetitions, with the 2.5 and 97.5 percentiles
	as 95% confidence interval.
--databases all,eicu,mimic
	The database sources to process.
--parquet
	Also write the results as parquet files.
--nEstimators nr, --maxDepth nr, --eta nr
	The number of trees, the maximum tree depth and the learning rate of the classifiers.
--perturbation interventional | tree_path_dependent
	How SHAP values treat features outside a coalition. Interventional (the default) uses the rows of each fold as
	background data, tree_path_dependent follows the training cover of the trees.
--nrOfThreads nr
	The number of threads shapor uses.
*/

const (
	programVersion = 0.1
	programName    = "shapor"
)

func programMessage() string {
	return fmt.Sprint(programName, " version ", programVersion, " compiled with ", runtime.Version())
}

const mainHelp = "\nshapor commands:\n" +
	"shapor cohort diagnosesFile codeMapFile resultFile [flags]\n" +
	"shapor odds configDir dataDir resultsDir [flags]\n"

const cohortHelp = "\nshapor cohort parameters:\n" +
	"shapor cohort diagnosesFile codeMapFile resultFile\n" +
	"[--dataset MIMIC | eICU]\n" +
	"[--filters malignant | patients | all]\n" +
	"[--patients file]\n" +
	"[--nrOfThreads nr]\n"

const oddsHelp = "\nshapor odds parameters:\n" +
	"shapor odds configDir dataDir resultsDir\n" +
	"[--folds nr]\n" +
	"[--reps nr]\n" +
	"[--databases all,eicu,mimic]\n" +
	"[--parquet]\n" +
	"[--nEstimators nr]\n" +
	"[--maxDepth nr]\n" +
	"[--eta nr]\n" +
	"[--perturbation interventional | tree_path_dependent]\n" +
	"[--nrOfThreads nr]\n"

func parseFlags(flags *flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprint(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprint(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

func getFileName(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	return s
}

func runCohort() {
	var (
		// required parameters
		diagnoses string // The file with the patient diagnoses.
		codeMap   string // The file mapping ICD-10 codes onto cancer types.
		output    string // The cohort table to write.
		// optional flags
		dataset     string
		filters     string
		patients    string
		nrOfThreads int
	)
	var flags flag.FlagSet
	flags.StringVar(&dataset, "dataset", "MIMIC", "The dataset the diagnoses come from, MIMIC or eICU. "+
		"This determines the patient identifier column.")
	flags.StringVar(&filters, "filters", "malignant", "A list of filters to restrict the diagnoses.")
	flags.StringVar(&patients, "patients", "", "A file with the patient identifiers for the patients filter.")
	flags.IntVar(&nrOfThreads, "nrOfThreads", 0, "The number of threads shapor uses.")
	parseFlags(&flags, 5, cohortHelp)
	diagnoses = getFileName(os.Args[2], cohortHelp)
	codeMap = getFileName(os.Args[3], cohortHelp)
	output, _ = filepath.Abs(getFileName(os.Args[4], cohortHelp))
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " cohort ", diagnoses, " ", codeMap, " ", output)
	fmt.Fprint(&command, " --dataset ", dataset)
	fmt.Fprint(&command, " --filters ", filters)
	if patients != "" {
		fmt.Fprint(&command, " --patients ", patients)
	}
	if nrOfThreads > 0 {
		fmt.Fprint(&command, " --nrOfThreads ", nrOfThreads)
	}
	log.Println(programMessage())
	log.Println("Executing command:\n", command.String())
	err := app.RunCohortBuilder(&app.CohortParams{
		Diagnoses:   diagnoses,
		CodeMap:     codeMap,
		Output:      output,
		Dataset:     dataset,
		Filters:     filters,
		PatientList: patients,
		NrOfThreads: nrOfThreads,
	})
	if err != nil {
		log.Fatalln(err)
	}
}

func runOdds() {
	var (
		// required parameters
		configDir  string // The directory with the configuration lists.
		dataDir    string // The directory with the merged cohort tables.
		resultsDir string // The directory the results are written to.
		// optional flags
		folds        int
		reps         int
		databases    string
		parquet      bool
		nEstimators  int
		maxDepth     int
		eta          float64
		perturbation string
		nrOfThreads  int
	)
	defaults := boost.DefaultParams()
	var flags flag.FlagSet
	flags.IntVar(&folds, "folds", 8, "The number of stratified folds per repetition.")
	flags.IntVar(&reps, "reps", 5, "The number of repetitions of the fold split.")
	flags.StringVar(&databases, "databases", strings.Join(app.Databases, ","), "The database sources to process.")
	flags.BoolVar(&parquet, "parquet", false, "Also write the results as parquet files.")
	flags.IntVar(&nEstimators, "nEstimators", defaults.NEstimators, "The number of trees per classifier.")
	flags.IntVar(&maxDepth, "maxDepth", defaults.MaxDepth, "The maximum depth of the trees.")
	flags.Float64Var(&eta, "eta", defaults.LearningRate, "The learning rate of the boosting.")
	flags.StringVar(&perturbation, "perturbation", boost.Interventional.String(), "How SHAP values treat absent features.")
	flags.IntVar(&nrOfThreads, "nrOfThreads", 0, "The number of threads shapor uses.")
	parseFlags(&flags, 5, oddsHelp)
	configDir = getFileName(os.Args[2], oddsHelp)
	dataDir = getFileName(os.Args[3], oddsHelp)
	resultsDir, _ = filepath.Abs(getFileName(os.Args[4], oddsHelp))
	fmt.Println("Output path: ", resultsDir)
	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " odds ", configDir, " ", dataDir, " ", resultsDir)
	fmt.Fprint(&command, " --folds ", folds)
	fmt.Fprint(&command, " --reps ", reps)
	fmt.Fprint(&command, " --databases ", databases)
	if parquet {
		fmt.Fprint(&command, " --parquet")
	}
	fmt.Fprint(&command, " --nEstimators ", nEstimators)
	fmt.Fprint(&command, " --maxDepth ", maxDepth)
	fmt.Fprint(&command, " --eta ", eta)
	fmt.Fprint(&command, " --perturbation ", perturbation)
	if nrOfThreads > 0 {
		fmt.Fprint(&command, " --nrOfThreads ", nrOfThreads)
	}
	log.Println(programMessage())
	log.Println("Executing command:\n", command.String())
	dbs := []string{}
	for _, db := range strings.Split(databases, ",") {
		if trimmed := strings.Trim(db, " "); trimmed != "" {
			dbs = append(dbs, trimmed)
		}
	}
	attribution, err := boost.ParsePerturbation(perturbation)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, oddsHelp)
		os.Exit(1)
	}
	params := defaults
	params.NEstimators, params.MaxDepth, params.LearningRate = nEstimators, maxDepth, eta
	err = app.RunOddsRatios(&app.OddsParams{
		ConfigDir:    configDir,
		DataDir:      dataDir,
		ResultsDir:   resultsDir,
		Databases:    dbs,
		NFolds:       folds,
		NRep:         reps,
		Params:       params,
		Perturbation: attribution,
		Parquet:      parquet,
		NrOfThreads:  nrOfThreads,
	})
	if err != nil {
		log.Fatalln(err)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, mainHelp)
		os.Exit(1)
	}
	switch os.Args[1] {
	case "cohort":
		runCohort()
	case "odds":
		runOdds()
	default:
		fmt.Fprintln(os.Stderr, "Unknown command ", os.Args[1])
		fmt.Fprint(os.Stderr, mainHelp)
		os.Exit(1)
	}
}
