package finding

import (
	"strconv"
)

// The Finding API JSON encoding wraps nearly every field in an array and
// carries amounts as {"@currencyId": "USD", "__value__": "12.50"}. These
// helpers accept a scalar, an object or a singleton array at every level.

func first(v any) any {
	for {
		arr, ok := v.([]any)
		if !ok {
			return v
		}
		if len(arr) == 0 {
			return nil
		}
		v = arr[0]
	}
}

func field(v any, key string) any {
	m, ok := first(v).(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func path(v any, keys ...string) any {
	for _, k := range keys {
		v = field(v, k)
		if v == nil {
			return nil
		}
	}
	return v
}

func text(v any) string {
	switch t := first(v).(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return text(t["__value__"])
	default:
		return ""
	}
}

// list returns v as a slice of elements whether it arrived as an array or a
// lone object.
func list(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}
