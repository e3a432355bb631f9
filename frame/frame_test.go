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

package frame

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFromRecordsTypes(t *testing.T) {
	f, err := FromRecords(
		[]string{"age", "sex", "dead", "age"},
		[][]string{
			{"70", "M", "True", "1"},
			{"", "F", "False", "2"},
			{"NaN", "", "true", "3"},
		})
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	names := f.Names()
	want := []string{"age", "sex", "dead", "age.1"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	age, _ := f.Float("age")
	if age[0] != 70 || !math.IsNaN(age[1]) || !math.IsNaN(age[2]) {
		t.Errorf("age = %v", age)
	}
	dead, _ := f.Float("dead")
	if dead[0] != 1 || dead[1] != 0 || dead[2] != 1 {
		t.Errorf("dead = %v", dead)
	}
	text := f.TextColumns()
	if len(text) != 1 || text[0] != "sex" {
		t.Errorf("text columns = %v", text)
	}
	if _, err := f.Float("sex"); err == nil {
		t.Errorf("expected an error for a text column")
	}
}

func TestReadCSVSemicolon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort.csv")
	content := "id;has_cancer;lactate\n1;1;2.5\n2;;3\n3;1;\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if f.NRows() != 3 || len(f.Names()) != 3 {
		t.Fatalf("got %d rows and columns %v", f.NRows(), f.Names())
	}
	group, err := f.Binary("has_cancer")
	if err != nil {
		t.Fatal(err)
	}
	if group[0] != 1 || group[1] != 0 || group[2] != 1 {
		t.Errorf("Binary(has_cancer) = %v", group)
	}
}

func TestSelectAndMatrix(t *testing.T) {
	f := New(2)
	_ = f.AddNumeric("a", []float64{1, 2})
	_ = f.AddNumeric("b", []float64{3, math.NaN()})
	_ = f.AddNumeric("c", []float64{5, 6})
	s, err := f.Select([]string{"c", "a", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if names := s.Names(); len(names) != 2 || names[0] != "c" || names[1] != "a" {
		t.Fatalf("Select names = %v", names)
	}
	if _, err := f.Select([]string{"z"}); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Select unknown column: err = %v", err)
	}
	m, err := f.Matrix([]string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != 2 || c != 2 {
		t.Fatalf("dims = %d x %d", r, c)
	}
	if m.At(0, 0) != 3 || !math.IsNaN(m.At(1, 0)) || m.At(1, 1) != 2 {
		t.Errorf("unexpected matrix contents")
	}
	if missing := f.Missing([]string{"a", "x", "y"}); len(missing) != 2 || missing[0] != "x" {
		t.Errorf("Missing = %v", missing)
	}
}

func TestGetDummies(t *testing.T) {
	f := New(4)
	_ = f.AddText("sex", []string{"M", "F", "", "M"})
	_ = f.AddNumeric("age", []float64{1, 2, 3, 4})
	_ = f.AddText("race", []string{"b", "a", "a", "c"})
	d, generated, err := f.GetDummies([]string{"sex", "race"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"age", "sex_F", "sex_M", "race_a", "race_b", "race_c"}
	names := d.Names()
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if len(generated) != 5 || generated[0] != "sex_F" {
		t.Errorf("generated = %v", generated)
	}
	sexM, _ := d.Float("sex_M")
	sexF, _ := d.Float("sex_F")
	for i, want := range []float64{1, 0, 0, 1} {
		if sexM[i] != want {
			t.Errorf("sex_M[%d] = %v, want %v", i, sexM[i], want)
		}
	}
	if sexF[2] != 0 || sexM[2] != 0 {
		t.Errorf("missing category must be all zero")
	}
	if len(d.TextColumns()) != 0 {
		t.Errorf("text columns left after expansion: %v", d.TextColumns())
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, out string }{
		{"age>=65", "age_gt_eq_65"},
		{"gcs < 8", "gcs_lt_8"},
		{"a__b", "a_b"},
		{"a____b", "a_b"},
		{"plain", "plain"},
		{"x > = y", "x_gt_eq_y"},
	}
	for _, test := range tests {
		got := SanitizeName(test.in)
		if got != test.out {
			t.Errorf("SanitizeName(%q) = %q, want %q", test.in, got, test.out)
		}
		if again := SanitizeName(got); again != got {
			t.Errorf("SanitizeName is not idempotent on %q: %q", got, again)
		}
	}
}

func TestSanitizeCollision(t *testing.T) {
	if _, err := SanitizeNames([]string{"a b", "ab"}); !errors.Is(err, ErrNameCollision) {
		t.Errorf("expected ErrNameCollision, got %v", err)
	}
	names, err := SanitizeNames([]string{"a>b", "c"})
	if err != nil || names[0] != "a_gt_b" || names[1] != "c" {
		t.Errorf("SanitizeNames = %v, %v", names, err)
	}
	f := New(1)
	_ = f.AddNumeric("x<1", []float64{1})
	s, err := f.Sanitize()
	if err != nil {
		t.Fatal(err)
	}
	if !s.Has("x_lt_1") || s.Has("x<1") || !f.Has("x<1") {
		t.Errorf("Sanitize renamed columns incorrectly: %v", s.Names())
	}
}
