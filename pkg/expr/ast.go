package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a parsed expression.
type Node interface {
	String() string
	eval(env Env) (any, error)
}

type literal struct{ value any }

type ident struct{ name string }

type unary struct {
	op string // "-", "+", "not"
	x  Node
}

type binary struct {
	op   string // + - * / // %
	l, r Node
}

// compare holds a chain a < b <= c; every link must hold.
type compare struct {
	first Node
	ops   []string // == != < <= > >= in "not in" is "is not"
	rest  []Node
}

type logical struct {
	op   string // and, or
	l, r Node
}

type cond struct {
	then, test, els Node
}

type call struct {
	fn   string
	args []Node
}

type method struct {
	recv Node
	name string
	args []Node
}

type list struct{ elems []Node }

func (n *literal) String() string {
	switch v := n.value.(type) {
	case string:
		return strconv.Quote(v)
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(v)
	}
}

func (n *ident) String() string { return n.name }

func (n *unary) String() string {
	if n.op == "not" {
		return "(not " + n.x.String() + ")"
	}
	return "(" + n.op + n.x.String() + ")"
}

func (n *binary) String() string {
	return "(" + n.l.String() + " " + n.op + " " + n.r.String() + ")"
}

func (n *compare) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(n.first.String())
	for i, op := range n.ops {
		b.WriteString(" " + op + " ")
		b.WriteString(n.rest[i].String())
	}
	b.WriteString(")")
	return b.String()
}

func (n *logical) String() string {
	return "(" + n.l.String() + " " + n.op + " " + n.r.String() + ")"
}

func (n *cond) String() string {
	return "(" + n.then.String() + " if " + n.test.String() + " else " + n.els.String() + ")"
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, a := range nodes {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func (n *call) String() string { return n.fn + "(" + joinNodes(n.args) + ")" }

func (n *method) String() string {
	return n.recv.String() + "." + n.name + "(" + joinNodes(n.args) + ")"
}

func (n *list) String() string { return "[" + joinNodes(n.elems) + "]" }
