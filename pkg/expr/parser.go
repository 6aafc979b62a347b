package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports an expression that does not match the grammar.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

// Parse turns src into an expression tree. Only the restricted grammar is
// accepted: literals, field references, arithmetic, comparison and boolean
// operators, conditional expressions, list literals and whitelisted calls.
func Parse(src string) (Node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	n, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return n, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(offset int) token {
	if p.pos+offset < len(p.toks) {
		return p.toks[p.pos+offset]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) is(kind tokenKind, text string) bool {
	t := p.peek()
	return t.kind == kind && t.text == text
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.is(kind, text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if p.accept(kind, text) {
		return nil
	}
	return p.unexpected(p.peek())
}

func (p *parser) unexpected(t token) error {
	if t.kind == tokEOF {
		return &SyntaxError{Pos: t.pos, Msg: "unexpected end of expression"}
	}
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s %q", t.kind, t.text)}
}

// ternary := or ["if" or "else" ternary]
func (p *parser) ternary() (Node, error) {
	then, err := p.or()
	if err != nil {
		return nil, err
	}
	if !p.accept(tokKeyword, "if") {
		return then, nil
	}
	test, err := p.or()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokKeyword, "else"); err != nil {
		return nil, err
	}
	els, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return &cond{then: then, test: test, els: els}, nil
}

func (p *parser) or() (Node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.accept(tokKeyword, "or") {
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = &logical{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *parser) and() (Node, error) {
	l, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.accept(tokKeyword, "and") {
		r, err := p.not()
		if err != nil {
			return nil, err
		}
		l = &logical{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *parser) not() (Node, error) {
	if p.accept(tokKeyword, "not") {
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return &unary{op: "not", x: x}, nil
	}
	return p.comparison()
}

func (p *parser) compareOp() (string, bool) {
	t := p.peek()
	switch {
	case t.kind == tokOp:
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.next()
			return t.text, true
		}
	case t.kind == tokKeyword && t.text == "in":
		p.next()
		return "in", true
	case t.kind == tokKeyword && t.text == "not":
		if nt := p.peekAt(1); nt.kind == tokKeyword && nt.text == "in" {
			p.next()
			p.next()
			return "not in", true
		}
	case t.kind == tokKeyword && t.text == "is":
		p.next()
		if p.accept(tokKeyword, "not") {
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *parser) comparison() (Node, error) {
	first, err := p.sum()
	if err != nil {
		return nil, err
	}
	var c *compare
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		r, err := p.sum()
		if err != nil {
			return nil, err
		}
		if c == nil {
			c = &compare{first: first}
		}
		c.ops = append(c.ops, op)
		c.rest = append(c.rest, r)
	}
	if c == nil {
		return first, nil
	}
	return c, nil
}

func (p *parser) sum() (Node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.is(tokOp, "+") || p.is(tokOp, "-") {
		op := p.next().text
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) term() (Node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.is(tokOp, "*") || p.is(tokOp, "/") || p.is(tokOp, "//") || p.is(tokOp, "%") {
		op := p.next().text
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) unary() (Node, error) {
	if p.is(tokOp, "-") || p.is(tokOp, "+") {
		op := p.next().text
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x}, nil
	}
	return p.postfix()
}

// postfix := primary ("." ident "(" args ")")*
func (p *parser) postfix() (Node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokOp, ".") {
		name := p.next()
		if name.kind != tokIdent {
			return nil, p.unexpected(name)
		}
		if !p.is(tokOp, "(") {
			return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("attribute access %q is not allowed", name.text)}
		}
		if _, ok := stringMethods[name.text]; !ok {
			return nil, &SyntaxError{Pos: name.pos, Msg: fmt.Sprintf("method %q is not allowed", name.text)}
		}
		p.next()
		args, err := p.args(")")
		if err != nil {
			return nil, err
		}
		n = &method{recv: n, name: name.text, args: args}
	}
	return n, nil
}

func (p *parser) args(closing string) ([]Node, error) {
	var out []Node
	if p.accept(tokOp, closing) {
		return out, nil
	}
	for {
		a, err := p.ternary()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
		if p.accept(tokOp, closing) {
			return out, nil
		}
		if err := p.expect(tokOp, ","); err != nil {
			return nil, err
		}
		// trailing comma
		if p.accept(tokOp, closing) {
			return out, nil
		}
	}
}

func (p *parser) primary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		v, err := strconv.ParseInt(strings.ReplaceAll(t.text, "_", ""), 10, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid integer %q", t.text)}
		}
		return &literal{value: v}, nil
	case tokFloat:
		v, err := strconv.ParseFloat(strings.ReplaceAll(t.text, "_", ""), 64)
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid number %q", t.text)}
		}
		return &literal{value: v}, nil
	case tokString:
		return &literal{value: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "True", "true":
			return &literal{value: true}, nil
		case "False", "false":
			return &literal{value: false}, nil
		case "None", "null":
			return &literal{value: nil}, nil
		}
	case tokIdent:
		if !p.is(tokOp, "(") {
			return &ident{name: t.text}, nil
		}
		if _, ok := builtins[t.text]; !ok {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("call to %q is not allowed", t.text)}
		}
		p.next()
		args, err := p.args(")")
		if err != nil {
			return nil, err
		}
		return &call{fn: t.text, args: args}, nil
	case tokOp:
		switch t.text {
		case "(":
			n, err := p.ternary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokOp, ")"); err != nil {
				return nil, err
			}
			return n, nil
		case "[":
			elems, err := p.args("]")
			if err != nil {
				return nil, err
			}
			return &list{elems: elems}, nil
		}
	}
	return nil, p.unexpected(t)
}
