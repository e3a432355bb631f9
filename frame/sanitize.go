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
	"fmt"
	"strings"

	"github.com/carbocation/pfx"
)

// ErrNameCollision is returned when two distinct names sanitise to the same name.
var ErrNameCollision = errors.New("sanitized names collide")

// The classifier does not accept feature names with comparison symbols or spaces, e.g. "age>=65" or "GCS < 8".
var symbolReplacer = strings.NewReplacer(">", "_gt_", "<", "_lt_", "=", "_eq_", " ", "")

// SanitizeName rewrites a column name to a name without comparison symbols or spaces: > becomes _gt_, < becomes _lt_,
// = becomes _eq_, spaces are removed and repeated underscores are collapsed into one. Sanitizing a sanitized name
// leaves it unchanged.
func SanitizeName(name string) string {
	name = symbolReplacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// SanitizeNames sanitizes a list of names. It fails if two different names end up with the same sanitized name.
func SanitizeNames(names []string) ([]string, error) {
	result := make([]string, len(names))
	origin := map[string]string{}
	for i, name := range names {
		s := SanitizeName(name)
		if o, ok := origin[s]; ok && o != name {
			return nil, fmt.Errorf("%w: %q and %q both become %q", ErrNameCollision, o, name, s)
		}
		origin[s] = name
		result[i] = s
	}
	return result, nil
}

// Sanitize returns a frame with all column names sanitized, see SanitizeName.
func (f *Frame) Sanitize() (*Frame, error) {
	names, err := SanitizeNames(f.names)
	if err != nil {
		return nil, err
	}
	result := New(f.nrows)
	for i, name := range f.names {
		c := *f.cols[name]
		c.Name = names[i]
		if err := result.addColumn(&c); err != nil {
			return nil, pfx.Err(err)
		}
	}
	return result, nil
}
