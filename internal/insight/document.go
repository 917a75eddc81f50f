package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Well-known sections of the insight document.
const (
	SectionAdmin          = "admin_data"
	SectionDoctor         = "doctor"
	SectionPatientRecords = "patient_records"
)

// Document is a parsed insight file: section -> key -> value.
type Document struct {
	root Value
}

// Empty returns a document with no sections.
func Empty() *Document {
	return &Document{root: Value{kind: KindTable, table: orderedmap.New[string, Value]()}}
}

// Parse decodes an insight document. The top level must be a JSON object.
func Parse(data []byte) (*Document, error) {
	root, err := ParseValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode insight document: %w", err)
	}
	if !root.Is(KindTable) {
		return nil, errors.New("decode insight document: top level is not an object")
	}
	return &Document{root: root}, nil
}

// Sections returns section names in document order.
func (d *Document) Sections() []string {
	return d.root.Keys()
}

// Section returns a whole section.
func (d *Document) Section(name string) Value {
	return d.root.Field(name)
}

// Lookup returns section.key as stored, or Absent when it is missing.
func (d *Document) Lookup(section, key string) Value {
	return d.root.Field(section).Field(key)
}

// Issue is a value whose kind contradicts the schema.
type Issue struct {
	Section  string `json:"section"`
	Key      string `json:"key"`
	Expected Kind   `json:"-"`
	Got      Kind   `json:"-"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s.%s: expected %s, got %s", i.Section, i.Key, i.Expected, i.Got)
}

// MarshalJSON renders kinds by name.
func (i Issue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Section  string `json:"section"`
		Key      string `json:"key"`
		Expected string `json:"expected"`
		Got      string `json:"got"`
	}{i.Section, i.Key, i.Expected.String(), i.Got.String()})
}

// Schema lists the expected kind of well-known keys per section.
type Schema map[string]map[string]Kind

// DefaultSchema describes the keys the dashboards read.
func DefaultSchema() Schema {
	return Schema{
		SectionAdmin: {
			"ai_executive_brief":                KindText,
			"key_metrics":                       KindTable,
			"risk_distribution":                 KindTable,
			"risk_by_age":                       KindTable,
			"ai_root_cause_insight":             KindText,
			"risk_ownership_lens":               KindList,
			"equity_heatmap":                    KindTable,
			"ai_care_breakdown_prediction":      KindText,
			"ai_failure_pattern_insight":        KindText,
			"ai_financial_leakage_insight":      KindText,
			"cost_treemap_data":                 KindTable,
			"avoidable_cost_index":              KindNumber,
			"ai_forecast":                       KindText,
			"counterfactual_intelligence":       KindText,
			"hospitalization_risk_distribution": KindTable,
			"pre_loaded_prompts":                KindList,
			"ai_governance":                     KindTable,
			"ai_alerts":                         KindList,
		},
		SectionDoctor: {
			"hero_patients":              KindTable,
			"agent_footnote":             KindTable,
			"confidence_and_limitations": KindTable,
		},
		SectionPatientRecords: {},
	}
}

// accepts reports whether v can be read as kind want. Numeric text counts as
// a number.
func accepts(v Value, want Kind) bool {
	if v.Is(want) {
		return true
	}
	if want == KindNumber && v.Is(KindText) {
		_, ok := v.Number()
		return ok
	}
	return false
}

// Conform returns v when it has the kind schema expects for section.key and
// Absent otherwise, so renderers only handle one missing-data case. Keys
// the schema does not name pass through unchanged.
func (s Schema) Conform(section, key string, v Value) Value {
	want, ok := s[section][key]
	if !ok || v.IsAbsent() || accepts(v, want) {
		return v
	}
	return Absent
}

// Validate reports values in d whose kind contradicts schema. The document
// itself is left as parsed.
func (d *Document) Validate(schema Schema) []Issue {
	var issues []Issue

	sections := make([]string, 0, len(schema))
	for s := range schema {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	for _, section := range sections {
		sv := d.root.Field(section)
		if sv.IsAbsent() {
			continue
		}
		if !sv.Is(KindTable) {
			issues = append(issues, Issue{Section: section, Expected: KindTable, Got: sv.Kind()})
			continue
		}

		keys := make([]string, 0, len(schema[section]))
		for k := range schema[section] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			want := schema[section][key]
			got := sv.Field(key)
			if got.IsAbsent() || accepts(got, want) {
				continue
			}
			issues = append(issues, Issue{Section: section, Key: key, Expected: want, Got: got.Kind()})
		}
	}
	return issues
}
