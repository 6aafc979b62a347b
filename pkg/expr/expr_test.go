package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	env := Vars{
		"age":    int64(30),
		"price":  2.5,
		"name":   "Bob",
		"email":  "  Bob@Example.COM ",
		"active": true,
		"note":   nil,
		"tags":   []any{"a", "b"},
		"qty":    3,
	}

	tests := []struct {
		expr string
		want any
	}{
		{"age >= 18", true},
		{"age > 18 and age < 65", true},
		{"18 <= age < 30", false},
		{"not active", false},
		{"age + 1", int64(31)},
		{"age / 4", 7.5},
		{"age // 4", int64(7)},
		{"-7 // 2", int64(-4)},
		{"-7 % 3", int64(2)},
		{"price * qty", 7.5},
		{"age * 2 + 1", int64(61)},
		{"(age + 2) * 2", int64(64)},
		{"name + '!'", "Bob!"},
		{"'ab' * 2", "abab"},
		{"name == \"Bob\"", true},
		{"name != 'Bob'", false},
		{"'o' in name", true},
		{"name in ['Ann', 'Bob']", true},
		{"name not in ['Ann', 'Bob']", false},
		{"'c' in tags", false},
		{"note is None", true},
		{"note is not None", false},
		{"age == 30.0", true},
		{"'adult' if age >= 18 else 'minor'", "adult"},
		{"note or 'default'", "default"},
		{"active and name", "Bob"},
		{"len(name)", int64(3)},
		{"len(tags)", int64(2)},
		{"str(age)", "30"},
		{"str(price)", "2.5"},
		{"str(1.0)", "1.0"},
		{"str(active)", "True"},
		{"int('42')", int64(42)},
		{"int(price)", int64(2)},
		{"float('1.5')", 1.5},
		{"bool('')", false},
		{"abs(-3)", int64(3)},
		{"min(3, 1, 2)", int64(1)},
		{"max(tags)", "b"},
		{"round(2.5)", int64(2)},
		{"round(3.14159, 2)", 3.14},
		{"email.strip().lower()", "bob@example.com"},
		{"name.upper()", "BOB"},
		{"name.startswith('B')", true},
		{"name.endswith(['x', 'b'])", true},
		{"'a-b-c'.split('-')", []any{"a", "b", "c"}},
		{"'a b'.split()", []any{"a", "b"}},
		{"name.replace('o', '0')", "B0b"},
		{"'hello world'.title()", "Hello World"},
		{"'xxhixx'.strip('x')", "hi"},
		{"lower(name)", "bob"},
		{"1_000 + 1", int64(1001)},
		{"1e3", 1000.0},
		{"True and False", false},
		{"null == None", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := p.Eval(env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	env := Vars{"age": int64(30), "name": "Bob", "note": nil, "huge": int64(1) << 62, "big": 1e300}

	tests := []string{
		"name * huge",
		"len(name * huge) > 0",
		"int(big)",
		"int(-big)",
		"round(big)",
		"missing > 1",
		"age / 0",
		"age // 0",
		"age % 0",
		"name > 3",
		"note + 1",
		"note >= 18",
		"int('abc')",
		"len(age)",
		"age.lower()",
		"min()",
		"3 in age",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			p, err := Compile(src)
			require.NoError(t, err)
			_, err = p.Eval(env)
			require.Error(t, err)
			var evalErr *EvalError
			assert.ErrorAs(t, err, &evalErr)
		})
	}
}

func TestRepeatLimit(t *testing.T) {
	p, err := Compile("s * n")
	require.NoError(t, err)

	v, err := p.Eval(Vars{"s": "ab", "n": int64(maxRepeatLen / 2)})
	require.NoError(t, err)
	assert.Len(t, v, maxRepeatLen)

	_, err = p.Eval(Vars{"s": "ab", "n": int64(maxRepeatLen/2 + 1)})
	require.Error(t, err)

	v, err = p.Eval(Vars{"s": "ab", "n": int64(-3)})
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestParseRejectsUnsafeConstructs(t *testing.T) {
	tests := []string{
		"",
		"__import__('os')",
		"open('x')",
		"eval('1')",
		"name.__class__",
		"name.format()",
		"age = 3",
		"lambda: 1",
		"age +",
		"(age",
		"'unterminated",
		"age @ 2",
		"a if b",
		"x[0]",
		"{'a': 1}",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			require.Error(t, err)
			var syntaxErr *SyntaxError
			assert.ErrorAs(t, err, &syntaxErr)
		})
	}
}

func TestShortCircuit(t *testing.T) {
	// the right operand would fail if evaluated
	p := MustCompile("age < 18 and missing > 1")
	got, err := p.Eval(Vars{"age": int64(30)})
	require.NoError(t, err)
	assert.Equal(t, false, got)

	p = MustCompile("age > 18 or missing > 1")
	ok, err := p.EvalBool(Vars{"age": int64(30)})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTree(t *testing.T) {
	p := MustCompile("a + b * 2 > 3 and not c")
	assert.Equal(t, "(((a + (b * 2)) > 3) and (not c))", p.Tree())
	assert.Equal(t, "a + b * 2 > 3 and not c", p.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "None", FormatValue(nil))
	assert.Equal(t, "30.0", FormatValue(30.0))
	assert.Equal(t, "1e-05", FormatValue(0.00001))
	assert.Equal(t, "1e+16", FormatValue(1e16))
	assert.Equal(t, `["a", 1]`, FormatValue([]any{"a", int64(1)}))
	assert.Equal(t, "7", FormatValue(7))
}
