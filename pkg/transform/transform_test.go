package transform

import (
	"math"
	"testing"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func rec(kv ...any) models.Record {
	keys := make([]string, 0, len(kv)/2)
	vals := make([]any, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		keys = append(keys, kv[i].(string))
		vals = append(vals, kv[i+1])
	}
	return models.FromPairs(keys, vals)
}

func TestChainEndToEndExample(t *testing.T) {
	chain, err := NewChain([]config.TransformConfig{
		{Type: config.TransformRename, Mapping: map[string]string{"Full Name": "name"}},
		{Type: config.TransformCast, Columns: config.Columns{{Name: "age", Type: "int"}}},
		{Type: config.TransformFilter, Condition: "age >= 18"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"rename", "cast", "filter"}, chain.Names())

	ann := chain.Apply(rec("Full Name", "Ann", "age", "17"))
	assert.Equal(t, Drop, ann.Outcome)
	assert.Equal(t, "filter", ann.Step)
	assert.NoError(t, ann.Err)

	bob := chain.Apply(rec("Full Name", "Bob", "age", "30"))
	require.Equal(t, Keep, bob.Outcome)
	assert.True(t, bob.Record.Equal(rec("name", "Bob", "age", int64(30))))
}

func TestChainCastFailure(t *testing.T) {
	chain := New(mustCast(t, config.Columns{{Name: "age", Type: "int"}}), NewRename(map[string]string{"age": "years"}))

	res := chain.Apply(rec("age", "abc"))
	assert.Equal(t, Fail, res.Outcome)
	assert.Equal(t, "cast", res.Step)
	require.Error(t, res.Err)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeTransform))
	field, _ := errors.Detail(res.Err, "field")
	assert.Equal(t, "age", field)
	// the failing record is reported as it entered the failing step
	assert.True(t, res.Record.Has("age"))
}

func mustCast(t *testing.T, cols config.Columns) *Cast {
	t.Helper()
	c, err := NewCast(cols)
	require.NoError(t, err)
	return c
}

func TestCastConversions(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		to      string
		want    any
		wantErr bool
	}{
		{name: "int from string", value: " 42 ", to: "int", want: int64(42)},
		{name: "int from negative", value: "-7", to: "int", want: int64(-7)},
		{name: "int from float truncates", value: 3.9, to: "int", want: int64(3)},
		{name: "int from bool", value: true, to: "int", want: int64(1)},
		{name: "int leading zero stays decimal", value: "08", to: "int", want: int64(8)},
		{name: "int from decimal string", value: "3.5", to: "int", wantErr: true},
		{name: "int from huge float", value: 1e300, to: "int", wantErr: true},
		{name: "int from float at 2^63", value: 9223372036854775808.0, to: "int", wantErr: true},
		{name: "int from negative huge float", value: -1e19, to: "int", wantErr: true},
		{name: "int from infinity", value: math.Inf(1), to: "int", wantErr: true},
		{name: "int from garbage", value: "abc", to: "int", wantErr: true},
		{name: "float from string", value: "2.5", to: "float", want: 2.5},
		{name: "float from int", value: int64(2), to: "float", want: 2.0},
		{name: "float from garbage", value: "x", to: "float", wantErr: true},
		{name: "str from int", value: int64(30), to: "str", want: "30"},
		{name: "str from float", value: 1.5, to: "str", want: "1.5"},
		{name: "str from bool", value: true, to: "str", want: "true"},
		{name: "bool from true", value: "True", to: "bool", want: true},
		{name: "bool from yes", value: "yes", to: "bool", want: true},
		{name: "bool from 0", value: "0", to: "bool", want: false},
		{name: "bool from int", value: int64(2), to: "bool", want: true},
		{name: "bool from garbage", value: "maybe", to: "bool", wantErr: true},
		{name: "datetime date", value: "2024-03-01", to: "datetime", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "datetime iso", value: "2024-03-01T10:20:30", to: "datetime", want: time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{name: "datetime space", value: "2024-03-01 10:20", to: "datetime", want: time.Date(2024, 3, 1, 10, 20, 0, 0, time.UTC)},
		{name: "datetime garbage", value: "yesterday", to: "datetime", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft, ok := models.ParseFieldType(tt.to)
			require.True(t, ok)
			got, err := Convert(tt.value, ft)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCastSkipsMissingAndNull(t *testing.T) {
	c := mustCast(t, config.Columns{{Name: "age", Type: "int"}, {Name: "score", Type: "float"}})
	out, outcome, err := c.Apply(rec("age", nil, "name", "x"))
	require.NoError(t, err)
	assert.Equal(t, Keep, outcome)
	assert.Nil(t, out.Value("age"))
	assert.False(t, out.Has("score"))
}

func TestFilter(t *testing.T) {
	f, err := NewFilter("age >= 18 and country == 'NO'", nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		record  models.Record
		want    Outcome
		wantErr bool
	}{
		{name: "match", record: rec("age", int64(20), "country", "NO"), want: Keep},
		{name: "no match", record: rec("age", int64(20), "country", "SE"), want: Drop},
		{name: "missing field drops", record: rec("country", "NO"), want: Drop, wantErr: true},
		{name: "type error drops", record: rec("age", "twenty", "country", "NO"), want: Drop, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, outcome, err := f.Apply(tt.record)
			assert.Equal(t, tt.want, outcome)
			if tt.wantErr {
				assert.True(t, errors.IsType(err, errors.ErrorTypeExpression))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err = NewFilter("age >=", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExpression))
}

func TestDerive(t *testing.T) {
	d, err := NewDerive("total = price * qty")
	require.NoError(t, err)
	assert.Equal(t, "total", d.Target())

	out, outcome, err := d.Apply(rec("price", 2.5, "qty", int64(4)))
	require.NoError(t, err)
	assert.Equal(t, Keep, outcome)
	assert.Equal(t, []string{"price", "qty", "total"}, out.Keys())
	assert.Equal(t, 10.0, out.Value("total"))

	// string * int repeats the string
	out, outcome, err = d.Apply(rec("price", "ab", "qty", int64(3)))
	require.NoError(t, err)
	assert.Equal(t, Keep, outcome)
	assert.Equal(t, "ababab", out.Value("total"))

	// evaluation failure omits the field but keeps the record
	failing := []struct {
		name string
		in   models.Record
	}{
		{"missing field", rec("price", 2.5)},
		{"string minus int", rec("price", "n/a", "qty", int64(4))},
		{"oversized repetition", rec("price", "ab", "qty", int64(1)<<62)},
	}
	for _, tt := range failing {
		t.Run(tt.name, func(t *testing.T) {
			expr := "total = price * qty"
			if tt.name == "string minus int" {
				expr = "total = price - qty"
			}
			d, err := NewDerive(expr)
			require.NoError(t, err)

			out, outcome, err := d.Apply(tt.in)
			assert.Equal(t, Keep, outcome)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeTransform))
			assert.False(t, out.Has("total"))
		})
	}
}

func TestFilter_OversizedRepetitionDrops(t *testing.T) {
	f, err := NewFilter("len(name * n) > 0", zaptest.NewLogger(t))
	require.NoError(t, err)

	_, outcome, err := f.Apply(rec("name", "Ann", "n", int64(1)<<62))
	assert.Equal(t, Drop, outcome)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExpression))

	_, outcome, err = f.Apply(rec("name", "Ann", "n", int64(2)))
	require.NoError(t, err)
	assert.Equal(t, Keep, outcome)
}

func TestDeriveParsing(t *testing.T) {
	tests := []struct {
		src    string
		target string
		ok     bool
	}{
		{"adult = age >= 18", "adult", true},
		{"same = a == b", "same", true},
		{"x=1", "x", true},
		{"a == b", "", false},
		{"a >= b", "", false},
		{"= 1", "", false},
		{"x =", "", false},
		{"no assignment", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			d, err := NewDerive(tt.src)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, d.Target())
		})
	}

	d, err := NewDeriveField("domain", "email.split('@')")
	require.NoError(t, err)
	out, _, err := d.Apply(rec("email", "a@b.io"))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b.io"}, out.Value("domain"))
}

func TestDeduplicate(t *testing.T) {
	d, err := NewDeduplicate([]string{"id"})
	require.NoError(t, err)

	inputs := []models.Record{
		rec("id", int64(1), "v", "first"),
		rec("id", int64(2), "v", "a"),
		rec("id", int64(1), "v", "second"),
		rec("id", "1", "v", "string key is distinct"),
		rec("id", 1.0, "v", "float equals int"),
		rec("v", "no id"),
		rec("id", nil, "v", "null id equals missing"),
	}
	var kept []string
	for _, r := range inputs {
		_, outcome, err := d.Apply(r)
		require.NoError(t, err)
		if outcome == Keep {
			kept = append(kept, r.Value("v").(string))
		}
	}
	assert.Equal(t, []string{"first", "a", "string key is distinct", "no id"}, kept)
	assert.Equal(t, 4, d.Seen())

	d.Reset()
	_, outcome, _ := d.Apply(rec("id", int64(1)))
	assert.Equal(t, Keep, outcome)
}

func TestDeduplicateCompositeKey(t *testing.T) {
	chain, err := NewChain([]config.TransformConfig{
		{Type: config.TransformDeduplicate, Key: config.StringList{"a", "b"}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, Keep, chain.Apply(rec("a", "x", "b", "y")).Outcome)
	assert.Equal(t, Keep, chain.Apply(rec("a", "x", "b", "z")).Outcome)
	assert.Equal(t, Drop, chain.Apply(rec("a", "x", "b", "y")).Outcome)
	// separator bytes inside values do not collide with the tuple boundary
	assert.Equal(t, Keep, chain.Apply(rec("a", "x\x1fsy", "b", "")).Outcome)

	chain.Reset()
	assert.Equal(t, Keep, chain.Apply(rec("a", "x", "b", "y")).Outcome)
}

func TestChainWarningsAndProjection(t *testing.T) {
	chain, err := NewChain([]config.TransformConfig{
		{Type: config.TransformDerive, Expression: "ratio = a / b"},
		{Type: config.TransformSelect, Columns: config.Columns{{Name: "ratio"}, {Name: "a"}}},
		{Type: config.TransformDrop, Columns: config.Columns{{Name: "a"}}},
	}, nil)
	require.NoError(t, err)

	ok := chain.Apply(rec("a", int64(1), "b", int64(4), "c", "x"))
	require.Equal(t, Keep, ok.Outcome)
	assert.Empty(t, ok.Warnings)
	assert.True(t, ok.Record.Equal(rec("ratio", 0.25)))

	warned := chain.Apply(rec("a", int64(1), "b", int64(0)))
	require.Equal(t, Keep, warned.Outcome)
	require.Len(t, warned.Warnings, 1)
	assert.Equal(t, "derive", warned.Warnings[0].Step)
	assert.Equal(t, 0, warned.Record.Len())
}

func TestNewChainRejectsBadConfig(t *testing.T) {
	_, err := NewChain([]config.TransformConfig{{Type: "explode"}}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewChain([]config.TransformConfig{{Type: config.TransformFilter, Condition: "import os"}}, nil)
	require.Error(t, err)
}
