package json

import (
	"strings"
	"testing"

	"github.com/ajitpratap0/pipeflow/pkg/models"
	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecordPreservesOrder(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"z": 1, "a": "x", "m": {"k2": true, "k1": null}, "l": [1, 2.5]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"z", "a", "m", "l"}, rec.Keys())
	assert.Equal(t, int64(1), rec.Value("z"))
	assert.Equal(t, "x", rec.Value("a"))

	nested, ok := rec.Value("m").(models.Record)
	require.True(t, ok)
	assert.Equal(t, []string{"k2", "k1"}, nested.Keys())
	assert.Equal(t, true, nested.Value("k2"))
	assert.Nil(t, nested.Value("k1"))

	list, ok := rec.Value("l").([]any)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), 2.5}, list)
}

func TestDecodeRecordErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "array root", input: `[1,2]`},
		{name: "scalar root", input: `"hello"`},
		{name: "truncated", input: `{"a": 1`},
		{name: "trailing data", input: `{"a": 1} {"b": 2}`},
		{name: "empty", input: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestDecodeValueStream(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`[{"id": 1}, {"id": 2}]`))
	tok, err := dec.Token()
	require.NoError(t, err)
	assert.Equal(t, gojson.Delim('['), tok)

	var ids []any
	for dec.More() {
		v, err := DecodeValue(dec)
		require.NoError(t, err)
		ids = append(ids, v.(models.Record).Value("id"))
	}
	assert.Equal(t, []any{int64(1), int64(2)}, ids)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "null", TypeName(nil))
	assert.Equal(t, "object", TypeName(models.NewRecord()))
	assert.Equal(t, "array", TypeName([]any{}))
	assert.Equal(t, "number", TypeName(int64(3)))
	assert.Equal(t, "boolean", TypeName(false))
}
