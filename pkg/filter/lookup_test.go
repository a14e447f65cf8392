package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		key  string
		want Lookup
		ok   bool
	}{
		{key: "name", want: Lookup{Columns: []string{"name"}, Op: OpEq}, ok: true},
		{key: "project_id", want: Lookup{Columns: []string{"project_id"}, Op: OpEq}, ok: true},
		{key: "name__icontains", want: Lookup{Columns: []string{"name"}, Op: OpIContains}, ok: true},
		{key: "id__in_subquery", want: Lookup{Columns: []string{"id"}, Op: OpIn}, ok: true},
		{key: "id__in_if_exists", want: Lookup{Columns: []string{"id"}, Op: OpIn, OrNull: true}, ok: true},
		{key: "created__date", want: Lookup{Columns: []string{"created"}, Op: OpEq, Date: true}, ok: true},
		{
			key:  "created__date__with_offset__lte",
			want: Lookup{Columns: []string{"created"}, Op: OpLte, Date: true, Offset: true},
			ok:   true,
		},
		{key: "a__or__b", want: Lookup{Columns: []string{"a", "b"}, Op: OpEq}, ok: true},
		{key: "a__or__b__or__c", want: Lookup{Columns: []string{"a", "b", "c"}, Op: OpEq}, ok: true},
		{key: "a__or__b__in_pair", want: Lookup{Columns: []string{"a", "b"}, Op: OpIn, Pair: true}, ok: true},
		{
			key:  "a__or__b__coalesce__in__in_pair",
			want: Lookup{Columns: []string{"a", "b"}, Op: OpIn, Pair: true, Coalesce: true},
			ok:   true,
		},
		{
			key:  "a__or__b__coalesce__icontains_in_pair",
			want: Lookup{Columns: []string{"a", "b"}, Op: OpIContains, Pair: true, Coalesce: true, AnyPattern: true},
			ok:   true,
		},
		{
			key:  "a__or__b__icontains__in_pair",
			want: Lookup{Columns: []string{"a", "b"}, Op: OpIContains, Pair: true, AnyPattern: true},
			ok:   true,
		},
		{
			key:  "a__or__b__date__gt_in_pair",
			want: Lookup{Columns: []string{"a", "b"}, Op: OpGt, Pair: true, Date: true},
			ok:   true,
		},
		{key: "name__contains__in", want: Lookup{Columns: []string{"name"}, Op: OpContains, AnyPattern: true}, ok: true},
		{
			key:  "name__icontains__not_in",
			want: Lookup{Columns: []string{"name"}, Op: OpIContains, AnyPattern: true, NotAll: true},
			ok:   true,
		},
		{
			key:  "tags__include_all_if_exists",
			want: Lookup{Columns: []string{"tags"}, Op: OpIncludeAll, OrNull: true},
			ok:   true,
		},
		{key: "meta__jsonb_isnull", want: Lookup{Columns: []string{"meta"}, Op: OpJSONIsNull}, ok: true},

		{key: "", ok: false},
		{key: "name__", ok: false},
		{key: "name__bogus", ok: false},
		{key: "name__gt__lt", ok: false},
		{key: "name__with_offset__gt", ok: false},
		{key: "name__date__date", ok: false},
		{key: "name__date__isnull", ok: false},
		{key: "name__in__in", ok: false},
		{key: "name__date__with_offset__gt_in_pair", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := ParseKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "icontains", OpIContains.String())
	assert.Equal(t, "has_any_keys", OpHasAnyKeys.String())
	assert.Equal(t, "unknown", Op(99).String())
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%ab%", containsPattern("ab"))
	assert.Equal(t, `%100\%%`, containsPattern("100%"))
	assert.Equal(t, `%a\\b%`, containsPattern(`a\b`))
}

func TestAsList(t *testing.T) {
	items, ok := asList([]string{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, items)

	items, ok = asList([2]int{1, 2})
	assert.True(t, ok)
	assert.Equal(t, []any{1, 2}, items)

	items, ok = asList([]int(nil))
	assert.True(t, ok)
	assert.Empty(t, items)

	_, ok = asList("ab")
	assert.False(t, ok)
	_, ok = asList(nil)
	assert.False(t, ok)
}
