// Package insight provides read access to the pre-computed insight document
// that backs every dashboard view.
package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Placeholder is returned for any section or key that is not present.
const Placeholder = "Insight derivation in progress..."

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindText
	KindNumber
	KindBool
	KindList
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindTable:
		return "table"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a decoded insight payload. The zero Value is Absent.
// Tables remember the key order of the source document.
type Value struct {
	kind   Kind
	text   string
	number float64
	flag   bool
	items  []Value
	table  *orderedmap.OrderedMap[string, Value]
}

// Absent is the single variant used for anything missing or unusable.
var Absent = Value{}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, number: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// List returns a list value holding items.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, items: items}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the absent variant.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Is reports whether v holds kind k.
func (v Value) Is(k Kind) bool { return v.kind == k }

// String renders v as display text. Absent renders as Placeholder.
func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return Placeholder
	case KindNull:
		return ""
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindList:
		return strings.Join(v.Strings(), ", ")
	case KindTable:
		parts := make([]string, 0, v.table.Len())
		for pair := v.table.Oldest(); pair != nil; pair = pair.Next() {
			parts = append(parts, pair.Key+": "+pair.Value.String())
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// Or renders v, substituting fallback when v is absent.
func (v Value) Or(fallback string) string {
	if v.IsAbsent() {
		return fallback
	}
	return v.String()
}

// Number returns the numeric payload. Text that parses as a number counts.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.number, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// List returns the items of a list value, nil otherwise.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// Strings renders every item of a list value.
func (v Value) Strings() []string {
	if v.kind != KindList {
		return nil
	}
	out := make([]string, 0, len(v.items))
	for _, item := range v.items {
		out = append(out, item.String())
	}
	return out
}

// Keys returns the keys of a table value in document order.
func (v Value) Keys() []string {
	if v.kind != KindTable {
		return nil
	}
	out := make([]string, 0, v.table.Len())
	for pair := v.table.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Field returns the named entry of a table value. Anything else yields Absent.
func (v Value) Field(name string) Value {
	if v.kind != KindTable {
		return Absent
	}
	f, ok := v.table.Get(name)
	if !ok {
		return Absent
	}
	return f
}

// Path walks nested tables.
func (v Value) Path(names ...string) Value {
	cur := v
	for _, n := range names {
		cur = cur.Field(n)
	}
	return cur
}

// Len returns the number of list items or table entries.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindTable:
		return v.table.Len()
	}
	return 0
}

// Interface converts v to plain Go values as encoding/json would produce them.
// Absent converts to Placeholder.
func (v Value) Interface() any {
	switch v.kind {
	case KindAbsent:
		return Placeholder
	case KindNull:
		return nil
	case KindText:
		return v.text
	case KindNumber:
		return v.number
	case KindBool:
		return v.flag
	case KindList:
		out := make([]any, 0, len(v.items))
		for _, item := range v.items {
			out = append(out, item.Interface())
		}
		return out
	case KindTable:
		out := make(map[string]any, v.table.Len())
		for pair := v.table.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = pair.Value.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes v keeping table key order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindList:
		return json.Marshal(v.items)
	case KindTable:
		return json.Marshal(v.table)
	}
	return json.Marshal(v.Interface())
}

// ParseValue decodes a single JSON value. A repeated object key keeps its
// first position and its last value.
func ParseValue(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Absent, errors.New("invalid JSON value")
	}
	return fromResult(gjson.ParseBytes(data))
}

func fromResult(r gjson.Result) (Value, error) {
	switch {
	case r.IsObject():
		table := orderedmap.New[string, Value]()
		var err error
		r.ForEach(func(key, child gjson.Result) bool {
			var v Value
			if v, err = fromResult(child); err != nil {
				err = fmt.Errorf("%s: %w", key.Str, err)
				return false
			}
			table.Set(key.Str, v)
			return true
		})
		if err != nil {
			return Absent, err
		}
		return Value{kind: KindTable, table: table}, nil
	case r.IsArray():
		items := []Value{}
		var err error
		r.ForEach(func(_, child gjson.Result) bool {
			var v Value
			if v, err = fromResult(child); err != nil {
				return false
			}
			items = append(items, v)
			return true
		})
		if err != nil {
			return Absent, err
		}
		return List(items...), nil
	}

	switch r.Type {
	case gjson.Null:
		return Value{kind: KindNull}, nil
	case gjson.True, gjson.False:
		return Bool(r.Bool()), nil
	case gjson.Number:
		if math.IsInf(r.Num, 0) || math.IsNaN(r.Num) {
			return Absent, fmt.Errorf("number %s out of range", r.Raw)
		}
		return Number(r.Num), nil
	case gjson.String:
		return Text(r.Str), nil
	}
	return Absent, fmt.Errorf("unexpected JSON value %q", r.Raw)
}
