package utils

import "strconv"

// ToFloat64 safely converts numeric types to float64.
// Returns false for anything that is not already a number
// (strings are deliberately not parsed here).
func ToFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// ToInt64 converts numeric types to int64, truncating fractions.
// Numeric-looking strings are parsed base 10; everything else fails.
func ToInt64(val interface{}) (int64, bool) {
	if f, ok := ToFloat64(val); ok {
		return int64(f), true
	}
	if s, ok := val.(string); ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
