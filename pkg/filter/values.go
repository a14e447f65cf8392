package filter

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// asList flattens any slice or array except []byte.
func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		if rv.IsNil() {
			return []any{}, true
		}
	case reflect.Array:
	default:
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isList(v any) bool {
	_, ok := asList(v)
	return ok
}

// asStrings converts a list of strings or Stringers.
func asStrings(v any) ([]string, bool) {
	items, ok := asList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		switch s := item.(type) {
		case string:
			out[i] = s
		case fmt.Stringer:
			out[i] = s.String()
		default:
			rv := reflect.ValueOf(item)
			if rv.Kind() != reflect.String {
				return nil, false
			}
			out[i] = rv.String()
		}
	}
	return out, true
}

// asInt accepts any integer kind, or a float with no fractional part.
func asInt(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern wraps s as a LIKE pattern matching it anywhere, escaping
// the pattern metacharacters.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
