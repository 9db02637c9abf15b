package cache

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// normalizeValue renders v per the cache-key normalization rule: strings
// trimmed and lowercased, numbers in canonical decimal form, booleans
// lowercased, slices/arrays as sorted comma-joined tokens, nil as "null".
func normalizeValue(v any) string {
	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(t.String()))
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		tokens := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			tokens = append(tokens, normalizeValue(rv.Index(i).Interface()))
		}
		sortStrings(tokens)
		return strings.Join(tokens, ",")
	}

	return fmt.Sprintf("%v", v)
}
