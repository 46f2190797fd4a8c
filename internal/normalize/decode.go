package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// The wire format serialises numeric IDs as native numbers at some nesting
// depths and as stringified dictionary keys at others. Every boundary value
// goes through one of these helpers exactly once; absence decodes to the
// explicit zero/nil, never to a scattered default.

// flexDecimal reads a decimal from a number or a numeric string.
func flexDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if d, derr := decimal.NewFromString(n.String()); derr == nil {
			return d, true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if d, derr := decimal.NewFromString(s); derr == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

// flexInt64 reads an integer from a number or a numeric string.
func flexInt64(raw json.RawMessage) (int64, bool) {
	d, ok := flexDecimal(raw)
	if !ok {
		return 0, false
	}
	return d.IntPart(), true
}

// flexInt64Ptr maps absence and null to nil rather than zero. Volume fields
// rely on this: a bookmaker without exchange volume is nullable, not zero.
func flexInt64Ptr(raw json.RawMessage) *int64 {
	v, ok := flexInt64(raw)
	if !ok {
		return nil
	}
	return &v
}

// flexBool reads a bool from true/false, 0/1, or their string forms.
func flexBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if v, ok := flexInt64(raw); ok {
		return v != 0, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(s) {
		case "true", "1", "y":
			return true, true
		case "false", "0", "n", "":
			return false, true
		}
	}
	return false, false
}

// flexString reads a string or renders a number as its string form.
func flexString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// keyedMap decodes an object into its raw members. Non-objects (including
// the empty array some endpoints emit for empty dictionaries) decode to nil.
func keyedMap(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// positionKeys decodes an outcome-position map that may arrive either as an
// object keyed by stringified positions or as a plain array.
func positionKeys(raw json.RawMessage) map[int]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	if m := keyedMap(raw); m != nil {
		out := make(map[int]json.RawMessage, len(m))
		for k, v := range m {
			pos, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			out[pos] = v
		}
		return out
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	out := make(map[int]json.RawMessage, len(arr))
	for i, v := range arr {
		out[i] = v
	}
	return out
}
