// Package rows turns raw driver results into ordered key/value rows.
package rows

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Row is an ordered column -> value mapping. The zero Row is empty.
type Row struct {
	keys   []string
	values map[string]any
}

// Normalize builds a Row from parallel column and value slices. Duplicate
// column names keep the last value at the first position.
func Normalize(columns []string, values []any) Row {
	r := Row{
		keys:   make([]string, 0, len(columns)),
		values: make(map[string]any, len(columns)),
	}
	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		r.Set(col, v)
	}
	return r
}

// NormalizeAll converts every record. A nil or empty input yields an empty,
// non-nil slice.
func NormalizeAll(columns []string, records [][]any) []Row {
	out := make([]Row, 0, len(records))
	for _, rec := range records {
		out = append(out, Normalize(columns, rec))
	}
	return out
}

// NormalizeOne returns the first record, or false when there is none.
func NormalizeOne(columns []string, records [][]any) (Row, bool) {
	if len(records) == 0 {
		return Row{}, false
	}
	return Normalize(columns, records[0]), true
}

// FromMap builds a Row whose keys follow order; keys of m not in order are
// dropped.
func FromMap(order []string, m map[string]any) Row {
	r := Row{keys: make([]string, 0, len(order)), values: make(map[string]any, len(order))}
	for _, k := range order {
		if v, ok := m[k]; ok {
			r.Set(k, v)
		}
	}
	return r
}

// Set assigns a value, appending the key if it is new.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys returns the column names in result order.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Get returns the value for key, or nil.
func (r Row) Get(key string) any {
	return r.values[key]
}

// Lookup returns the value for key and whether it is present.
func (r Row) Lookup(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Len is the number of columns.
func (r Row) Len() int {
	return len(r.keys)
}

// Map returns an unordered copy.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Values returns the values in key order.
func (r Row) Values() []any {
	out := make([]any, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// MarshalJSON encodes the row as an object with keys in result order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Column extracts one column from every row.
func Column(rs []Row, key string) []any {
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = r.Get(key)
	}
	return out
}
