package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// CoercionError is returned when a wire value cannot be interpreted as the
// requested type.
type CoercionError struct {
	Target string
	Value  any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot interpret %#v as %s", e.Value, e.Target)
}

// ParseBool interprets a decoded JSON value as a boolean.
//
// Accepted inputs:
//
//	bool                        as is
//	number (float64, int, ...)  non-zero is true
//	json.Number                 non-zero is true
//	"true", "yes", "1"          true  (case-insensitive, surrounding space ignored)
//	"false", "no", "0"          false
//	other decimal strings       non-zero is true ("2.5", "-1e3")
//
// Hexadecimal, infinite and NaN spellings are rejected.
// Anything else, including nil and "maybe", is a *CoercionError.
func ParseBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case float32:
		return b != 0, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case json.Number:
		f, ok := parseDecimal(string(b))
		if !ok {
			return false, &CoercionError{Target: "bool", Value: v}
		}
		return f != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		f, ok := parseDecimal(strings.TrimSpace(b))
		if !ok {
			return false, &CoercionError{Target: "bool", Value: v}
		}
		return f != 0, nil
	}
	return false, &CoercionError{Target: "bool", Value: v}
}

var decimalRE = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// parseDecimal parses a finite base-10 number.
func parseDecimal(s string) (float64, bool) {
	if !decimalRE.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseInt interprets a decoded JSON value as an integer. Numbers must be
// integral; strings must hold a base-10 integer.
func ParseInt(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, &CoercionError{Target: "int", Value: v}
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return 0, &CoercionError{Target: "int", Value: v}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, &CoercionError{Target: "int", Value: v}
		}
		return i, nil
	}
	return 0, &CoercionError{Target: "int", Value: v}
}

// Bool is a boolean that decodes from any representation accepted by
// ParseBool and always encodes as a JSON boolean.
type Bool bool

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves the value
// unchanged.
func (b *Bool) UnmarshalJSON(data []byte) error {
	v, err := decodeScalar(data)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	parsed, err := ParseBool(v)
	if err != nil {
		return err
	}
	*b = Bool(parsed)
	return nil
}

// BoolPtr returns a pointer to a Bool holding v.
func BoolPtr(v bool) *Bool {
	b := Bool(v)
	return &b
}

// Int is an integer that also decodes from numeric strings.
type Int int64

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves the value
// unchanged.
func (i *Int) UnmarshalJSON(data []byte) error {
	v, err := decodeScalar(data)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	parsed, err := ParseInt(v)
	if err != nil {
		return err
	}
	*i = Int(parsed)
	return nil
}

// IntPtr returns a pointer to an Int holding v.
func IntPtr(v int64) *Int {
	i := Int(v)
	return &i
}

func decodeScalar(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
