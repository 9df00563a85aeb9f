package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
	}{
		{"json true", true, true},
		{"json false", false, false},
		{"one", float64(1), true},
		{"zero", float64(0), false},
		{"nonzero number", float64(42), true},
		{"negative number", float64(-3), true},
		{"int", 7, true},
		{"json number zero", json.Number("0"), false},
		{"string true", "true", true},
		{"string false", "false", false},
		{"string one", "1", true},
		{"string zero", "0", false},
		{"string yes", "yes", true},
		{"string no", "no", false},
		{"mixed case", " TRUE ", true},
		{"numeric string", "2.5", true},
		{"numeric zero string", "0.0", false},
		{"exponent string", "-1e3", true},
		{"leading dot", ".5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBool(tt.input)
			if err != nil {
				t.Fatalf("ParseBool(%#v) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%#v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseBool_Rejects(t *testing.T) {
	inputs := []any{
		"maybe", "", "on", nil, []any{}, map[string]any{},
		"inf", "-inf", "Infinity", "NaN", "0x1p0", "0x10", "1_000", "1e999",
		json.Number("Inf"),
	}
	for _, input := range inputs {
		_, err := ParseBool(input)
		if err == nil {
			t.Errorf("ParseBool(%#v) succeeded, want error", input)
			continue
		}
		var ce *CoercionError
		if !errors.As(err, &ce) {
			t.Errorf("ParseBool(%#v) error = %T, want *CoercionError", input, err)
		}
	}
}

func TestBool_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want Bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`"yes"`, true},
		{`"no"`, false},
		{`"0"`, false},
		{`"true"`, true},
	}
	for _, tt := range tests {
		var b Bool
		if err := json.Unmarshal([]byte(tt.raw), &b); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.raw, err)
			continue
		}
		if b != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.raw, b, tt.want)
		}
	}

	var b Bool
	if err := json.Unmarshal([]byte(`"maybe"`), &b); err == nil {
		t.Error("Unmarshal(\"maybe\") succeeded, want error")
	}
}

func TestBool_MarshalsAsBoolean(t *testing.T) {
	data, err := json.Marshal(struct {
		V Bool `json:"v"`
	}{V: true})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"v":true}` {
		t.Errorf("Marshal = %s, want {\"v\":true}", data)
	}
}

func TestInt_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw     string
		want    Int
		wantErr bool
	}{
		{raw: `1300`, want: 1300},
		{raw: `"1300"`, want: 1300},
		{raw: `" 42 "`, want: 42},
		{raw: `1.5`, wantErr: true},
		{raw: `"abc"`, wantErr: true},
		{raw: `true`, wantErr: true},
	}
	for _, tt := range tests {
		var i Int
		err := json.Unmarshal([]byte(tt.raw), &i)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.raw, err)
			continue
		}
		if i != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.raw, i, tt.want)
		}
	}
}
