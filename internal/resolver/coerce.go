package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ctrlpath/evalcore/internal/evalexpr"
)

// valueToAny flattens an evalexpr.Value into a plain Go value so the
// coercion tables below can treat interpreter results and override strings
// uniformly.
func valueToAny(v evalexpr.Value) any {
	switch v.Kind {
	case evalexpr.KindNull:
		return nil
	case evalexpr.KindBool:
		return v.Bool
	case evalexpr.KindNumber:
		return v.Number
	case evalexpr.KindString:
		return v.Str
	case evalexpr.KindList:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = valueToAny(item)
		}
		return items
	default:
		return nil
	}
}

var variantPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// coerceBoolean implements the boolean coercion table:
// true/1/"TRUE"/"ON"/"1"/"YES" (case-insensitive, trimmed) -> true;
// false/0/"FALSE"/"OFF"/"0" -> false; anything else is a type mismatch.
func coerceBoolean(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case float64:
		if v == 1 {
			return true, true
		}
		if v == 0 {
			return false, true
		}
		return false, false
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "TRUE", "ON", "1", "YES":
			return true, true
		case "FALSE", "OFF", "0":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// coerceString stringifies raw, and when the result matches
// ^[A-Z_][A-Z0-9_]*$ with length <= 50 it is also surfaced as the variant.
func coerceString(raw any) (value string, variant string) {
	value = stringify(raw)
	if len(value) <= 50 && variantPattern.MatchString(value) {
		variant = value
	}
	return value, variant
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceNumber converts raw to a float64; a non-numeric string is a type
// mismatch.
func coerceNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// coerceObject passes already-object values through, JSON-parses strings,
// and treats anything else as a type mismatch.
func coerceObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, false
		}
		return obj, true
	default:
		return nil, false
	}
}
