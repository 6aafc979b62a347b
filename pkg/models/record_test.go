package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordImmutability(t *testing.T) {
	orig := FromPairs([]string{"a", "b"}, []any{int64(1), "x"})

	set := orig.Set("c", true)
	renamed := orig.Rename(map[string]string{"a": "alpha"})
	deleted := orig.Delete("a")

	assert.Equal(t, []string{"a", "b"}, orig.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, set.Keys())
	assert.Equal(t, []string{"alpha", "b"}, renamed.Keys())
	assert.Equal(t, []string{"b"}, deleted.Keys())
	assert.False(t, orig.Has("c"))
}

func TestRecordSetKeepsPosition(t *testing.T) {
	r := FromPairs([]string{"a", "b", "c"}, []any{1, 2, 3}).Set("b", 20)
	assert.Equal(t, []string{"a", "b", "c"}, r.Keys())
	assert.Equal(t, 20, r.Value("b"))
}

func TestRecordRename(t *testing.T) {
	tests := []struct {
		name     string
		mapping  map[string]string
		wantKeys []string
		wantVals []any
	}{
		{
			name:     "single",
			mapping:  map[string]string{"Full Name": "name"},
			wantKeys: []string{"name", "age"},
			wantVals: []any{"Ann", "17"},
		},
		{
			name:     "unmapped passthrough",
			mapping:  map[string]string{"missing": "x"},
			wantKeys: []string{"Full Name", "age"},
			wantVals: []any{"Ann", "17"},
		},
		{
			name:     "collision keeps first position and last value",
			mapping:  map[string]string{"age": "Full Name"},
			wantKeys: []string{"Full Name"},
			wantVals: []any{"17"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromPairs([]string{"Full Name", "age"}, []any{"Ann", "17"}).Rename(tt.mapping)
			require.Equal(t, tt.wantKeys, r.Keys())
			for i, k := range tt.wantKeys {
				assert.Equal(t, tt.wantVals[i], r.Value(k))
			}
		})
	}
}

func TestRecordFlatten(t *testing.T) {
	user := FromPairs([]string{"name", "address"}, []any{
		"Ann",
		FromPairs([]string{"city"}, []any{"Oslo"}),
	})
	r := FromPairs([]string{"id", "user", "tags", "empty"}, []any{int64(1), user, []any{"a"}, NewRecord()})

	flat := r.Flatten("_")
	assert.Equal(t, []string{"id", "user_name", "user_address_city", "tags", "empty"}, flat.Keys())
	assert.Equal(t, "Oslo", flat.Value("user_address_city"))
	assert.Equal(t, []any{"a"}, flat.Value("tags"))
	assert.Nil(t, flat.Value("empty"))
}

func TestRecordMarshalJSON(t *testing.T) {
	r := FromPairs([]string{"b", "a", "n"}, []any{"x", int64(2), nil})
	out, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":"x","a":2,"n":null}`, string(out))
}

func TestRecordEqual(t *testing.T) {
	a := FromPairs([]string{"x", "l"}, []any{int64(1), []any{"a"}})
	b := FromPairs([]string{"x", "l"}, []any{int64(1), []any{"a"}})
	c := FromPairs([]string{"l", "x"}, []any{[]any{"a"}, int64(1)})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(a.Set("x", int64(2))))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, FieldTypeInt, TypeOf(int64(1)))
	assert.Equal(t, FieldTypeFloat, TypeOf(1.5))
	assert.Equal(t, FieldTypeString, TypeOf("s"))
	assert.Equal(t, FieldTypeBool, TypeOf(true))
	assert.Equal(t, FieldTypeDatetime, TypeOf(time.Now()))
	assert.Equal(t, FieldType(""), TypeOf(nil))
	assert.Equal(t, FieldTypeJSON, TypeOf([]any{}))
}
