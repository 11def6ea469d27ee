// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reference holds the read-only watch reference catalogue used to
// backfill brand and family on extracted listings.
package reference

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bcem/watchfeed/internal/models"
)

// Table is an in-memory catalogue matched by longest pid prefix.
type Table struct {
	rows []models.WatchReference // sorted by prefix length, longest first
}

type fileFormat struct {
	References []models.WatchReference `yaml:"references"`
}

// Load reads a YAML catalogue of the form
//
//	references:
//	  - pid: "126710"
//	    brand: Rolex
//	    family: GMT-Master II
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reference file: %w", err)
	}
	return NewTable(f.References), nil
}

// NewTable builds a table from rows. Rows without a prefix are dropped.
func NewTable(rows []models.WatchReference) *Table {
	t := &Table{}
	for _, r := range rows {
		r.PIDPrefix = normalize(r.PIDPrefix)
		if r.PIDPrefix == "" {
			continue
		}
		t.rows = append(t.rows, r)
	}
	sort.SliceStable(t.rows, func(i, j int) bool {
		return len(t.rows[i].PIDPrefix) > len(t.rows[j].PIDPrefix)
	})
	return t
}

func normalize(pid string) string {
	return strings.ToUpper(strings.Join(strings.Fields(pid), ""))
}

// Lookup returns the row with the longest prefix of pid, or nil.
func (t *Table) Lookup(_ context.Context, pid string) (*models.WatchReference, error) {
	pid = normalize(pid)
	for i := range t.rows {
		if strings.HasPrefix(pid, t.rows[i].PIDPrefix) {
			r := t.rows[i]
			return &r, nil
		}
	}
	return nil, nil
}

// Rows returns a copy of the catalogue.
func (t *Table) Rows() []models.WatchReference {
	return append([]models.WatchReference(nil), t.rows...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }
