package insight

import (
	"encoding/json"
	"testing"
)

func TestParseValueKeepsKeyOrder(t *testing.T) {
	v, err := ParseValue([]byte(`{"high": 19, "medium": 40, "low": 41}`))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	keys := v.Keys()
	want := []string{"high", "medium", "low"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"high":19,"medium":40,"low":41}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestParseValueKinds(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		str  string
	}{
		{`"text"`, KindText, "text"},
		{`0.68`, KindNumber, "0.68"},
		{`100`, KindNumber, "100"},
		{`true`, KindBool, "true"},
		{`null`, KindNull, ""},
		{`["a", 1]`, KindList, "a, 1"},
		{`{"a": "x", "b": 2}`, KindTable, "a: x, b: 2"},
	}
	for _, tt := range tests {
		v, err := ParseValue([]byte(tt.in))
		if err != nil {
			t.Fatalf("ParseValue(%s): %v", tt.in, err)
		}
		if v.Kind() != tt.kind {
			t.Errorf("ParseValue(%s).Kind() = %s, want %s", tt.in, v.Kind(), tt.kind)
		}
		if v.String() != tt.str {
			t.Errorf("ParseValue(%s).String() = %q, want %q", tt.in, v.String(), tt.str)
		}
	}
}

func TestParseValueRejectsTrailingData(t *testing.T) {
	if _, err := ParseValue([]byte(`{} {}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}

func TestParseValueDuplicateKeys(t *testing.T) {
	v, err := ParseValue([]byte(`{"a": 1, "b": 2, "a": 3}`))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if keys := v.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("keys = %v, want [a b]", keys)
	}
	if n, _ := v.Field("a").Number(); n != 3 {
		t.Errorf("a = %v, want the last value", n)
	}
}

func TestParseValueRejectsInvalid(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":}`, `[1,]`, `1e400`, `{"a": [1e999]}`} {
		if _, err := ParseValue([]byte(in)); err == nil {
			t.Errorf("ParseValue(%q) should fail", in)
		}
	}
}

func TestMarshalNested(t *testing.T) {
	in := `{"z":{"b":[1,"x",null,true],"a":{}},"y":[]}`
	v, err := ParseValue([]byte(in))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("Marshal = %s, want %s", out, in)
	}
}

func TestAbsentAccessors(t *testing.T) {
	v := Absent.Field("a").Path("b", "c")
	if !v.IsAbsent() {
		t.Fatalf("nested lookup on absent should stay absent")
	}
	if v.String() != Placeholder {
		t.Errorf("String() = %q", v.String())
	}
	if v.Or("fallback") != "fallback" {
		t.Errorf("Or() = %q", v.Or("fallback"))
	}
	if v.List() != nil || v.Keys() != nil || v.Len() != 0 {
		t.Error("absent should have no items")
	}
	if _, ok := v.Number(); ok {
		t.Error("absent should not be a number")
	}
}

func TestNumberFromText(t *testing.T) {
	n, ok := Text(" 0.5 ").Number()
	if !ok || n != 0.5 {
		t.Errorf("Number() = %v, %v", n, ok)
	}
	if _, ok := Text("high").Number(); ok {
		t.Error("non-numeric text should not parse")
	}
}
