// Package patient serves per-patient demo records: demographics, narrative
// insights and the evidence tables shown on the doctor dashboard.
package patient

import (
	"github.com/drfirst/clinical-intel/internal/insight"
)

// Evidence table names as stored under each patient record.
const (
	TableConditions   = "conditions"
	TableObservations = "observations"
	TableEncounters   = "encounters"
	TableCareGaps     = "care_gaps"
	TableInsurance    = "insurance"
	TableMedications  = "medications"
)

// TableNames lists every evidence table in display order.
var TableNames = []string{
	TableConditions,
	TableObservations,
	TableEncounters,
	TableCareGaps,
	TableInsurance,
	TableMedications,
}

// IsTableName reports whether name is a known evidence table.
func IsTableName(name string) bool {
	for _, n := range TableNames {
		if n == name {
			return true
		}
	}
	return false
}

// Table is rendered tabular data. The zero Table is empty.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Empty reports whether t has no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Column returns the values of the named column.
func (t Table) Column(name string) []string {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, row[idx])
	}
	return out
}

// TableFrom converts an insight value into a Table. Accepted shapes:
//   - a list of row objects (columns in first-seen key order)
//   - an object of equal-purpose column lists
//   - an object of scalars (rendered as Field/Value pairs)
//   - a list of scalars (single Value column)
//
// Anything else yields an empty table.
func TableFrom(v insight.Value) Table {
	switch v.Kind() {
	case insight.KindList:
		return fromList(v.List())
	case insight.KindTable:
		return fromObject(v)
	}
	return Table{}
}

func fromList(items []insight.Value) Table {
	var t Table
	if len(items) == 0 {
		return t
	}

	if !items[0].Is(insight.KindTable) {
		t.Columns = []string{"Value"}
		for _, item := range items {
			t.Rows = append(t.Rows, []string{cell(item)})
		}
		return t
	}

	seen := make(map[string]bool)
	for _, item := range items {
		for _, k := range item.Keys() {
			if !seen[k] {
				seen[k] = true
				t.Columns = append(t.Columns, k)
			}
		}
	}
	for _, item := range items {
		if !item.Is(insight.KindTable) {
			continue
		}
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = cell(item.Field(col))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func fromObject(v insight.Value) Table {
	var t Table
	keys := v.Keys()
	if len(keys) == 0 {
		return t
	}

	columnar := true
	for _, k := range keys {
		if !v.Field(k).Is(insight.KindList) {
			columnar = false
			break
		}
	}

	if !columnar {
		t.Columns = []string{"Field", "Value"}
		for _, k := range keys {
			t.Rows = append(t.Rows, []string{k, cell(v.Field(k))})
		}
		return t
	}

	t.Columns = keys
	n := 0
	for _, k := range keys {
		if l := v.Field(k).Len(); l > n {
			n = l
		}
	}
	for i := 0; i < n; i++ {
		row := make([]string, len(keys))
		for j, k := range keys {
			items := v.Field(k).List()
			if i < len(items) {
				row[j] = cell(items[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func cell(v insight.Value) string {
	if v.IsAbsent() {
		return ""
	}
	return v.String()
}
