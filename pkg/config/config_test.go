package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullPipeline = `
name: users
extract:
  type: csv
  path: ${PIPEFLOW_TEST_DIR}/users.csv
transforms:
  - type: rename
    mapping: {"Full Name": name}
  - type: cast
    columns:
      age: int
      score: float
  - type: filter
    condition: "age >= 18"
  - type: derive
    expression: "adult = age >= 18"
  - type: deduplicate
    key: [name, email]
  - type: select
    columns: [name, age]
validate:
  model: User
  fields:
    name: {type: str}
    age: int
    nickname: {type: str, required: false}
load:
  type: sqlite
  table: users
  mode: upsert
  conflict_key: name
  batch_size: 50
options:
  stop_on_load_failure: false
`

func TestParseFullPipeline(t *testing.T) {
	t.Setenv("PIPEFLOW_TEST_DIR", "/data")

	cfg, err := Parse([]byte(fullPipeline))
	require.NoError(t, err)

	assert.Equal(t, "users", cfg.Name)
	assert.Equal(t, "/data/users.csv", cfg.Extract.Path)
	assert.Equal(t, DefaultDelimiter, cfg.Extract.Delimiter)
	assert.Equal(t, DefaultEncoding, cfg.Extract.Encoding)
	assert.True(t, cfg.Extract.CSVHasHeader())

	require.Len(t, cfg.Transforms, 6)
	assert.Equal(t, map[string]string{"Full Name": "name"}, cfg.Transforms[0].Mapping)
	assert.Equal(t, Columns{{Name: "age", Type: "int"}, {Name: "score", Type: "float"}}, cfg.Transforms[1].Columns)
	assert.Equal(t, StringList{"name", "email"}, cfg.Transforms[4].Key)
	assert.Equal(t, "first", cfg.Transforms[4].Keep)
	assert.Equal(t, []string{"name", "age"}, cfg.Transforms[5].Columns.Names())

	require.NotNil(t, cfg.Validate)
	assert.Equal(t, ValidateCollectAll, cfg.Validate.Mode)
	assert.Equal(t, FieldSpecs{
		{Name: "name", Type: "str", Required: true},
		{Name: "age", Type: "int", Required: true},
		{Name: "nickname", Type: "str", Required: false},
	}, cfg.Validate.Fields)

	assert.Equal(t, DefaultDatabase, cfg.Load.Database)
	assert.Equal(t, StringList{"name"}, cfg.Load.ConflictKey)
	assert.Equal(t, 50, cfg.Load.BatchSize)
	assert.False(t, cfg.Options.ShouldStopOnLoadFailure())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
extract: {type: api, url: "http://example.test/items"}
load: {type: csv}
`))
	require.NoError(t, err)

	assert.Equal(t, "pipeline", cfg.Name)
	assert.Equal(t, "GET", cfg.Extract.Method)
	assert.Equal(t, DefaultHTTPTimeout, cfg.Extract.Timeout)
	assert.Equal(t, PaginationNone, cfg.Extract.Pagination.Type)
	assert.Equal(t, DefaultPageLimit, cfg.Extract.Pagination.Limit)
	assert.Equal(t, "next_cursor", cfg.Extract.Pagination.CursorPath)
	assert.Equal(t, DefaultCSVPath, cfg.Load.Path)
	assert.Equal(t, ModeInsert, cfg.Load.Mode)
	assert.Equal(t, DefaultBatchSize, cfg.Load.BatchSize)
	assert.True(t, cfg.Options.ShouldStopOnLoadFailure())
	assert.Nil(t, cfg.Validate)
}

func TestParseTimeout(t *testing.T) {
	cfg, err := Parse([]byte(`
extract: {type: api, url: "http://x", timeout: 5s, rate_limit: 2.5}
load: {type: sqlite}
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Extract.Timeout)
	assert.Equal(t, 2.5, cfg.Extract.RateLimit)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{
			name:     "unknown option",
			yaml:     "extract: {type: csv, path: a.csv, colour: red}\nload: {type: csv}",
			contains: "colour",
		},
		{
			name:     "missing extract type",
			yaml:     "load: {type: csv}",
			contains: "extract.type is required",
		},
		{
			name:     "unknown loader",
			yaml:     "extract: {type: csv, path: a.csv}\nload: {type: kafka}",
			contains: `unknown loader "kafka"`,
		},
		{
			name:     "upsert without key",
			yaml:     "extract: {type: csv, path: a.csv}\nload: {type: sqlite, mode: upsert}",
			contains: "load.conflict_key is required",
		},
		{
			name:     "bad cast type",
			yaml:     "extract: {type: jsonl, path: a.jsonl}\ntransforms: [{type: cast, columns: {a: decimal}}]\nload: {type: csv}",
			contains: `unknown cast type "decimal"`,
		},
		{
			name:     "dedup keep last",
			yaml:     "extract: {type: json, path: a.json}\ntransforms: [{type: deduplicate, key: id, keep: last}]\nload: {type: csv}",
			contains: "transforms[0].keep",
		},
		{
			name:     "postgres without dsn",
			yaml:     "extract: {type: csv, path: a.csv}\nload: {type: postgres}",
			contains: "load.dsn is required",
		},
		{
			name:     "bad pagination",
			yaml:     "extract: {type: api, url: \"http://x\", pagination: {type: scroll}}\nload: {type: csv}",
			contains: `unknown strategy "scroll"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extract: {type: csv, path: in.csv}\nload: {type: csv, path: out.csv}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out.csv", cfg.Load.Path)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("PIPEFLOW_SET", "value")
	t.Setenv("PIPEFLOW_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"a: ${PIPEFLOW_SET}", "a: value"},
		{"a: ${PIPEFLOW_UNSET_VAR}", "a: "},
		{"a: ${PIPEFLOW_UNSET_VAR:-fallback}", "a: fallback"},
		{"a: ${PIPEFLOW_EMPTY:-fallback}", "a: fallback"},
		{"a: ${PIPEFLOW_SET:-fallback}", "a: value"},
		{"a: $PIPEFLOW_SET", "a: $PIPEFLOW_SET"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SubstituteEnvVars(tt.in), tt.in)
	}
}

func TestCheck_ValidateBlock(t *testing.T) {
	cfg := &PipelineConfig{
		Name:    "users",
		Extract: ExtractConfig{Type: ExtractCSV, Path: "users.csv"},
		Validate: &ValidateConfig{
			Fields: FieldSpecs{{Name: "age", Type: "int", Required: true}},
		},
		Load: LoadConfig{Type: LoadCSV, Path: "out.csv"},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Check())
	assert.Equal(t, ValidateCollectAll, cfg.Validate.Mode)

	cfg.Validate.Fields[0].Type = "decimal"
	err := cfg.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate.fields.age")
}
