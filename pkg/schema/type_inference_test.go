package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pipeflow/pkg/models"
)

func TestInferRecord(t *testing.T) {
	rec := models.FromPairs(
		[]string{"id", "name", "score", "active", "seen", "note", "tags"},
		[]any{int64(1), "Ann", 1.5, true, time.Now(), nil, []any{"a"}},
	)

	s := InferRecord("users", rec)
	assert.Equal(t, "users", s.Name)
	assert.Equal(t, rec.Keys(), s.FieldNames())

	want := []models.FieldType{
		models.FieldTypeInt, models.FieldTypeString, models.FieldTypeFloat, models.FieldTypeBool,
		models.FieldTypeDatetime, models.FieldTypeString, models.FieldTypeJSON,
	}
	for i, f := range s.Fields {
		assert.Equal(t, want[i], f.Type, f.Name)
	}
}

func TestInferType(t *testing.T) {
	e := NewTypeInferenceEngine()

	tests := []struct {
		name         string
		values       []any
		wantType     models.FieldType
		wantNullable bool
	}{
		{name: "ints", values: []any{int64(1), int64(2)}, wantType: models.FieldTypeInt},
		{name: "int float mix widens", values: []any{int64(1), 2.5}, wantType: models.FieldTypeFloat},
		{name: "nulls", values: []any{"a", nil}, wantType: models.FieldTypeString, wantNullable: true},
		{name: "all null", values: []any{nil, nil}, wantType: models.FieldTypeString, wantNullable: true},
		{name: "mixed falls back to str", values: []any{int64(1), "a", true}, wantType: models.FieldTypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.InferType("f", tt.values)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantNullable, got.Nullable)
		})
	}
}

func TestInferSchema_StringFormats(t *testing.T) {
	e := NewTypeInferenceEngine()
	e.DetectStringFormats = true

	samples := []models.Record{
		models.FromPairs([]string{"id", "age", "joined", "name"}, []any{"1", "34", "2024-01-05", "Ann"}),
		models.FromPairs([]string{"id", "age", "joined", "name"}, []any{"2", "29.5", "2024-02-01T10:00:00Z", "Bob"}),
		models.FromPairs([]string{"id", "extra"}, []any{"3", "x"}),
	}

	s, details := e.InferSchema("users", samples)
	require.Equal(t, []string{"id", "age", "joined", "name", "extra"}, s.FieldNames())

	byName := map[string]InferredType{}
	for _, d := range details {
		byName[d.Name] = d
	}
	assert.Equal(t, "int", byName["id"].Format)
	assert.Equal(t, "", byName["name"].Format)
	assert.Equal(t, "datetime", byName["joined"].Format)
	assert.True(t, byName["extra"].Nullable)
	assert.Equal(t, []any{"1", "2", "3"}, byName["id"].Examples)
}

func TestDetectChanges(t *testing.T) {
	current := models.Schema{Fields: []models.Field{
		{Name: "id", Type: models.FieldTypeInt},
		{Name: "name", Type: models.FieldTypeString},
		{Name: "legacy", Type: models.FieldTypeString},
	}}
	next := models.Schema{Fields: []models.Field{
		{Name: "id", Type: models.FieldTypeString},
		{Name: "name", Type: models.FieldTypeString},
		{Name: "email", Type: models.FieldTypeString},
	}}

	changes := DetectChanges(current, next)
	require.Len(t, changes, 3)
	assert.Equal(t, ChangeTypeModifyType, changes[0].Type)
	assert.Equal(t, "id", changes[0].Field)
	assert.Equal(t, ChangeTypeAddField, changes[1].Type)
	assert.Equal(t, "email", changes[1].Field)
	assert.Equal(t, ChangeTypeRemoveField, changes[2].Type)
	assert.Equal(t, "legacy", changes[2].Field)

	rec := models.FromPairs([]string{"id", "zip", "name", "city"}, []any{1, "x", "y", "z"})
	assert.Equal(t, []string{"zip", "city"}, ExtraFields(next, rec))
}
