// Package expr implements the restricted expression language used by the
// filter and derive transforms.
//
// Expressions are parsed once into a tree and evaluated against a record's
// fields. The grammar admits literals, field references, arithmetic
// (+ - * / // %), comparisons (chained, plus in / not in / is / is not),
// and / or / not, "x if cond else y", list literals and a fixed set of
// functions and string methods. There is no attribute access, indexing,
// assignment or way to reach arbitrary code.
package expr

import (
	"strings"
)

// Program is a compiled expression.
type Program struct {
	src  string
	root Node
}

// Compile parses src.
func Compile(src string) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{src: strings.TrimSpace(src), root: root}, nil
}

// MustCompile is like Compile but panics on error. It is meant for tests and
// package-level constants.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval evaluates the program against env.
func (p *Program) Eval(env Env) (any, error) {
	return p.root.eval(env)
}

// EvalBool evaluates the program and reports its truth value.
func (p *Program) EvalBool(env Env) (bool, error) {
	v, err := p.root.eval(env)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// String returns the source text.
func (p *Program) String() string { return p.src }

// Tree returns the parenthesized form of the parsed expression.
func (p *Program) Tree() string { return p.root.String() }

// Vars is a map-backed Env.
type Vars map[string]any

// Get implements Env.
func (v Vars) Get(name string) (any, bool) {
	x, ok := v[name]
	return x, ok
}
