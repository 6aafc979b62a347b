package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type builtinFunc func(args []any) (any, error)

type methodFunc func(s string, args []any) (any, error)

var builtins = map[string]builtinFunc{
	"len":   fnLen,
	"str":   fnStr,
	"int":   fnInt,
	"float": fnFloat,
	"bool":  fnBool,
	"abs":   fnAbs,
	"min":   func(args []any) (any, error) { return extreme("min", args, -1) },
	"max":   func(args []any) (any, error) { return extreme("max", args, 1) },
	"round": fnRound,
	"lower": func(args []any) (any, error) { return strFunc("lower", args, strings.ToLower) },
	"upper": func(args []any) (any, error) { return strFunc("upper", args, strings.ToUpper) },
	"strip": func(args []any) (any, error) { return strFunc("strip", args, strings.TrimSpace) },
}

var stringMethods = map[string]methodFunc{
	"lower":      noArgs("lower", strings.ToLower),
	"upper":      noArgs("upper", strings.ToUpper),
	"title":      noArgs("title", title),
	"strip":      trimMethod("strip", strings.TrimSpace, strings.Trim),
	"lstrip":     trimMethod("lstrip", func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }, strings.TrimLeft),
	"rstrip":     trimMethod("rstrip", func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }, strings.TrimRight),
	"startswith": affixMethod("startswith", strings.HasPrefix),
	"endswith":   affixMethod("endswith", strings.HasSuffix),
	"replace":    methodReplace,
	"split":      methodSplit,
}

func arity(name string, args []any, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("%s() takes %d argument(s), got %d", name, lo, len(args))
		}
		return fmt.Errorf("%s() takes %d to %d arguments, got %d", name, lo, hi, len(args))
	}
	return nil
}

func fnLen(args []any) (any, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case string:
		return int64(utf8.RuneCountInString(v)), nil
	case []any:
		return int64(len(v)), nil
	}
	return nil, fmt.Errorf("object of type %s has no len()", typeName(args[0]))
}

func fnStr(args []any) (any, error) {
	if err := arity("str", args, 1, 1); err != nil {
		return nil, err
	}
	return FormatValue(args[0]), nil
}

func fnInt(args []any) (any, error) {
	if err := arity("int", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := numeric(args[0]).(type) {
	case int64:
		return v, nil
	case float64:
		return toInt64(v)
	case string:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(v), "_", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int(): %q", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("int() argument must be a string or a number, not %s", typeName(args[0]))
}

func fnFloat(args []any) (any, error) {
	if err := arity("float", args, 1, 1); err != nil {
		return nil, err
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	if s, ok := args[0].(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %q", s)
		}
		return f, nil
	}
	return nil, fmt.Errorf("float() argument must be a string or a number, not %s", typeName(args[0]))
}

func fnBool(args []any) (any, error) {
	if err := arity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return false, nil
	}
	return Truthy(args[0]), nil
}

func fnAbs(args []any) (any, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := numeric(args[0]).(type) {
	case int64:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	}
	return nil, fmt.Errorf("bad operand type for abs(): %s", typeName(args[0]))
}

// extreme implements min (sign -1) and max (sign 1) over arguments or a
// single list argument.
func extreme(name string, args []any, sign int) (any, error) {
	items := args
	if len(args) == 1 {
		l, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("%s() argument must be a list when called with one argument", name)
		}
		items = l
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, v := range items[1:] {
		c, err := order(v, best)
		if err != nil {
			return nil, fmt.Errorf("%s() cannot compare %s and %s", name, typeName(v), typeName(best))
		}
		if c*sign > 0 {
			best = v
		}
	}
	return best, nil
}

func fnRound(args []any) (any, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	digits := int64(0)
	if len(args) == 2 {
		d, ok := numeric(args[1]).(int64)
		if !ok {
			return nil, fmt.Errorf("round() ndigits must be an integer")
		}
		digits = d
	}
	switch v := numeric(args[0]).(type) {
	case int64:
		return v, nil
	case float64:
		if len(args) == 1 {
			return toInt64(math.RoundToEven(v))
		}
		p := math.Pow(10, float64(digits))
		return math.RoundToEven(v*p) / p, nil
	}
	return nil, fmt.Errorf("type %s doesn't define round()", typeName(args[0]))
}

func strFunc(name string, args []any, f func(string) string) (any, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%s() argument must be str, not %s", name, typeName(args[0]))
	}
	return f(s), nil
}

func noArgs(name string, f func(string) string) methodFunc {
	return func(s string, args []any) (any, error) {
		if err := arity(name, args, 0, 0); err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

func trimMethod(name string, space func(string) string, chars func(string, string) string) methodFunc {
	return func(s string, args []any) (any, error) {
		if err := arity(name, args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 || args[0] == nil {
			return space(s), nil
		}
		cut, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s arg must be None or str", name)
		}
		return chars(s, cut), nil
	}
}

func affixMethod(name string, f func(string, string) bool) methodFunc {
	return func(s string, args []any) (any, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		switch a := args[0].(type) {
		case string:
			return f(s, a), nil
		case []any:
			for _, e := range a {
				if es, ok := e.(string); ok && f(s, es) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, fmt.Errorf("%s arg must be str or a list of str", name)
	}
}

func methodReplace(s string, args []any) (any, error) {
	if err := arity("replace", args, 2, 3); err != nil {
		return nil, err
	}
	old, ok1 := args[0].(string)
	repl, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("replace() arguments must be str")
	}
	n := -1
	if len(args) == 3 {
		c, ok := numeric(args[2]).(int64)
		if !ok {
			return nil, fmt.Errorf("replace() count must be an integer")
		}
		n = int(c)
	}
	return strings.Replace(s, old, repl, n), nil
}

func methodSplit(s string, args []any) (any, error) {
	if err := arity("split", args, 0, 1); err != nil {
		return nil, err
	}
	var parts []string
	if len(args) == 0 || args[0] == nil {
		parts = strings.Fields(s)
	} else {
		sep, ok := args[0].(string)
		if !ok || sep == "" {
			return nil, fmt.Errorf("split() separator must be a non-empty str")
		}
		parts = strings.Split(s, sep)
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func title(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}

// FormatValue renders v the way str() does: None, True/False, floats always
// with a decimal point or exponent.
func FormatValue(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if s, ok := e.(string); ok {
				parts[i] = strconv.Quote(s)
			} else {
				parts[i] = FormatValue(e)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	var s string
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
