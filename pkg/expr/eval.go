package expr

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Env resolves field references. models.Record satisfies it.
type Env interface {
	Get(name string) (any, bool)
}

// EvalError reports a failure while evaluating a well-formed expression.
type EvalError struct {
	Expr string
	Msg  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %s: %s", e.Expr, e.Msg)
}

func evalErr(n Node, format string, args ...any) error {
	return &EvalError{Expr: n.String(), Msg: fmt.Sprintf(format, args...)}
}

func (n *literal) eval(Env) (any, error) { return n.value, nil }

func (n *ident) eval(env Env) (any, error) {
	v, ok := env.Get(n.name)
	if !ok {
		return nil, evalErr(n, "undefined field %q", n.name)
	}
	return normalize(v), nil
}

func (n *list) eval(env Env) (any, error) {
	out := make([]any, len(n.elems))
	for i, e := range n.elems {
		v, err := e.eval(env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (n *unary) eval(env Env) (any, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "not":
		return !Truthy(x), nil
	case "-":
		switch v := numeric(x).(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
	case "+":
		switch v := numeric(x).(type) {
		case int64, float64:
			return v, nil
		}
	}
	return nil, evalErr(n, "bad operand type for unary %s: %s", n.op, typeName(x))
}

func (n *logical) eval(env Env) (any, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return nil, err
	}
	if n.op == "and" && !Truthy(l) {
		return l, nil
	}
	if n.op == "or" && Truthy(l) {
		return l, nil
	}
	return n.r.eval(env)
}

func (n *cond) eval(env Env) (any, error) {
	t, err := n.test.eval(env)
	if err != nil {
		return nil, err
	}
	if Truthy(t) {
		return n.then.eval(env)
	}
	return n.els.eval(env)
}

func (n *compare) eval(env Env) (any, error) {
	left, err := n.first.eval(env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.ops {
		right, err := n.rest[i].eval(env)
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(op, left, right)
		if err != nil {
			return nil, evalErr(n, "%v", err)
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func (n *binary) eval(env Env) (any, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return nil, err
	}
	r, err := n.r.eval(env)
	if err != nil {
		return nil, err
	}
	v, err := arith(n.op, l, r)
	if err != nil {
		return nil, evalErr(n, "%v", err)
	}
	return v, nil
}

func (n *call) eval(env Env) (any, error) {
	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := builtins[n.fn](args)
	if err != nil {
		return nil, evalErr(n, "%v", err)
	}
	return v, nil
}

func (n *method) eval(env Env) (any, error) {
	recv, err := n.recv.eval(env)
	if err != nil {
		return nil, err
	}
	s, ok := recv.(string)
	if !ok {
		return nil, evalErr(n, "method %s is not allowed on %s", n.name, typeName(recv))
	}
	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	v, err := stringMethods[n.name](s, args)
	if err != nil {
		return nil, evalErr(n, "%v", err)
	}
	return v, nil
}

// normalize maps record values onto the evaluator's value set:
// nil, bool, int64, float64, string, []any, time.Time.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// numeric converts bools to ints, as arithmetic on booleans does.
func numeric(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// Truthy reports the boolean value of v: nil, false, zero numbers, empty
// strings and empty lists are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case time.Time:
		return !x.IsZero()
	default:
		return true
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case time.Time:
		return "datetime"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func compareValues(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "is":
		return identical(l, r), nil
	case "is not":
		return !identical(l, r), nil
	case "in", "not in":
		found, err := contains(r, l)
		if err != nil {
			return false, err
		}
		if op == "in" {
			return found, nil
		}
		return !found, nil
	}

	c, err := order(l, r)
	if err != nil {
		return false, fmt.Errorf("'%s' not supported between %s and %s", op, typeName(l), typeName(r))
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func equal(l, r any) bool {
	ln, lok := numeric(l).(int64)
	rn, rok := numeric(r).(int64)
	if lok && rok {
		return ln == rn
	}
	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			return lf == rf
		}
	}
	switch lv := l.(type) {
	case []any:
		rv, ok := r.([]any)
		if !ok || len(lv) != len(rv) {
			return false
		}
		for i := range lv {
			if !equal(lv[i], rv[i]) {
				return false
			}
		}
		return true
	case time.Time:
		rv, ok := r.(time.Time)
		return ok && lv.Equal(rv)
	}
	if _, ok := r.([]any); ok {
		return false
	}
	if l != nil && !reflect.TypeOf(l).Comparable() {
		return false
	}
	return l == r
}

func identical(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	if typeName(l) != typeName(r) {
		return false
	}
	return equal(l, r)
}

func toFloat(v any) (float64, bool) {
	switch x := numeric(v).(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// order returns -1, 0 or 1; mixed or unordered types are an error.
func order(l, r any) (int, error) {
	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			li, lint := numeric(l).(int64)
			ri, rint := numeric(r).(int64)
			if lint && rint {
				return cmp3(li < ri, li > ri), nil
			}
			return cmp3(lf < rf, lf > rf), nil
		}
	}
	switch lv := l.(type) {
	case string:
		if rv, ok := r.(string); ok {
			return strings.Compare(lv, rv), nil
		}
	case time.Time:
		if rv, ok := r.(time.Time); ok {
			return lv.Compare(rv), nil
		}
	}
	return 0, fmt.Errorf("unordered types")
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <str>' requires str as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, e := range c {
			if equal(e, item) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("argument of type %s is not iterable", typeName(container))
}

// maxRepeatLen bounds the length of a string built by string * int.
const maxRepeatLen = 10 << 20

// int64 conversion bounds for float64 values; 2^63 itself is out of range.
const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0
)

// toInt64 truncates f toward zero, rejecting NaN, infinities and values
// outside the int64 range.
func toInt64(f float64) (int64, error) {
	if math.IsNaN(f) || f < minInt64Float || f >= maxInt64Float {
		return 0, fmt.Errorf("cannot convert %v to integer", f)
	}
	return int64(f), nil
}

func repeat(s string, n int64) (string, error) {
	if n <= 0 || s == "" {
		return "", nil
	}
	if int64(len(s)) > maxRepeatLen/n {
		return "", fmt.Errorf("repeated string too long: %d * %d exceeds %d bytes", len(s), n, maxRepeatLen)
	}
	return strings.Repeat(s, int(n)), nil
}

func arith(op string, l, r any) (any, error) {
	// string and list operators
	switch lv := l.(type) {
	case string:
		if rv, ok := r.(string); ok && op == "+" {
			return lv + rv, nil
		}
		if n, ok := numeric(r).(int64); ok && op == "*" {
			return repeat(lv, n)
		}
	case []any:
		if rv, ok := r.([]any); ok && op == "+" {
			out := make([]any, 0, len(lv)+len(rv))
			return append(append(out, lv...), rv...), nil
		}
	}

	li, lint := numeric(l).(int64)
	ri, rint := numeric(r).(int64)
	if lint && rint {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return float64(li) / float64(ri), nil
		case "//":
			if ri == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			q := li / ri
			if (li%ri != 0) && ((li < 0) != (ri < 0)) {
				q--
			}
			return q, nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("integer modulo by zero")
			}
			m := li % ri
			if m != 0 && ((m < 0) != (ri < 0)) {
				m += ri
			}
			return m, nil
		}
	}

	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("unsupported operand types for %s: %s and %s", op, typeName(l), typeName(r))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("float division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, fmt.Errorf("float floor division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("float modulo")
		}
		m := math.Mod(lf, rf)
		if m != 0 && ((m < 0) != (rf < 0)) {
			m += rf
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}
