package stream

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The gateway encodes numbers as JSON numbers in some versions and as numeric
// strings in others. Every coercion goes through scalarText so both encodings
// parse identically; anything else reads as absent.

const maxExactFloatInt = 1 << 53

// scalarText returns the literal of a JSON number or the contents of a JSON string.
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw), true
	default:
		return "", false
	}
}

func asFloat(raw json.RawMessage) (float64, bool) {
	text, ok := scalarText(raw)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// asUint accepts "10", 10 and integral floats such as 10.0.
func asUint(raw json.RawMessage) (uint64, bool) {
	text, ok := scalarText(raw)
	if !ok {
		return 0, false
	}
	if n, err := strconv.ParseUint(text, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f < 0 || f > maxExactFloatInt || f != math.Trunc(f) {
		return 0, false
	}
	return uint64(f), true
}

// asPositiveInt is asUint restricted to ids: zero is not a valid contract.
func asPositiveInt(raw json.RawMessage) (int64, bool) {
	n, ok := asUint(raw)
	if !ok || n == 0 || n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}
