package rows

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	r := Normalize([]string{"id", "name", "project_id"}, []any{int64(1), "a", int64(7)})

	assert.Equal(t, []string{"id", "name", "project_id"}, r.Keys())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "a", r.Get("name"))
	assert.Equal(t, []any{int64(1), "a", int64(7)}, r.Values())

	v, ok := r.Lookup("project_id")
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Nil(t, r.Get("missing"))
}

func TestNormalize_ShortValues(t *testing.T) {
	r := Normalize([]string{"a", "b"}, []any{1})

	v, ok := r.Lookup("b")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestNormalizeAll(t *testing.T) {
	tests := []struct {
		name    string
		records [][]any
		want    int
	}{
		{name: "nil", records: nil, want: 0},
		{name: "two", records: [][]any{{1}, {2}}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NormalizeAll([]string{"id"}, tt.records)
			require.NotNil(t, out)
			assert.Len(t, out, tt.want)
		})
	}
}

func TestNormalizeOne(t *testing.T) {
	_, ok := NormalizeOne([]string{"id"}, nil)
	assert.False(t, ok, "absent row must be signalled, not returned empty")

	r, ok := NormalizeOne([]string{"id"}, [][]any{{int64(3)}, {int64(4)}})
	require.True(t, ok)
	assert.Equal(t, int64(3), r.Get("id"))
}

func TestRow_MapIsCopy(t *testing.T) {
	r := Normalize([]string{"id"}, []any{1})
	m := r.Map()
	m["id"] = 2

	assert.Equal(t, 1, r.Get("id"))
}

func TestRow_Set(t *testing.T) {
	var r Row
	r.Set("b", 1)
	r.Set("a", 2)
	r.Set("b", 3)

	assert.Equal(t, []string{"b", "a"}, r.Keys())
	assert.Equal(t, 3, r.Get("b"))
}

func TestFromMap(t *testing.T) {
	r := FromMap([]string{"id", "name", "absent"}, map[string]any{"name": "x", "id": 1, "extra": true})

	assert.Equal(t, []string{"id", "name"}, r.Keys())
}

func TestRow_MarshalJSON(t *testing.T) {
	r := Normalize([]string{"z", "a", "m"}, []any{1, "two", nil})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"two","m":null}`, string(data))

	data, err = json.Marshal(Row{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestColumn(t *testing.T) {
	rs := NormalizeAll([]string{"id", "name"}, [][]any{{1, "a"}, {2, "b"}})

	assert.Equal(t, []any{1, 2}, Column(rs, "id"))
}
