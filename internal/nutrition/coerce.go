// internal/nutrition/coerce.go
package nutrition

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// The analyzer has emitted numeric fields both as JSON numbers and as
// decimal strings ("123.4"). Every numeric field goes through coerceNumber,
// so both shapes are accepted without configuration.

// coerceNumber converts a loosely typed JSON value into a nutrition quantity.
// ok is false when the value is absent, of another JSON type, not a base-10
// decimal, or not finite. Signs are kept as sent.
func coerceNumber(v gjson.Result) (value float64, ok bool) {
	switch v.Type {
	case gjson.Number:
		value = v.Num
	case gjson.String:
		s := v.Str
		// ParseFloat also takes hex floats and digit separators; the wire format is plain decimal.
		if strings.ContainsAny(s, "xX_") {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// numberOrZero applies coerceNumber with the zero default.
func numberOrZero(v gjson.Result) float64 {
	value, _ := coerceNumber(v)
	return value
}

// optionalNumber applies coerceNumber and keeps absence visible.
func optionalNumber(v gjson.Result) *float64 {
	value, ok := coerceNumber(v)
	if !ok {
		return nil
	}
	return &value
}
