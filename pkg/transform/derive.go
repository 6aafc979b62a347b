package transform

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/expr"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// Derive assigns the value of an expression to a field. When the expression
// fails the field is omitted and the record continues with a warning.
type Derive struct {
	target string
	prog   *expr.Program
}

// NewDerive parses an assignment of the form "target = expression".
func NewDerive(assignment string) (*Derive, error) {
	target, src, ok := splitAssignment(assignment)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeExpression,
			"derive expression must have the form \"field = expression\": %q", assignment)
	}
	return NewDeriveField(target, src)
}

// NewDeriveField creates a derive step for an explicit target field.
func NewDeriveField(target, src string) (*Derive, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New(errors.ErrorTypeExpression, "derive target field is empty")
	}
	prog, err := expr.Compile(src)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExpression, "invalid derive expression").
			WithDetail("expression", src)
	}
	return &Derive{target: target, prog: prog}, nil
}

// splitAssignment splits on the first "=" that is not part of a comparison
// operator.
func splitAssignment(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '=' {
			return "", "", false
		}
		if i > 0 && strings.ContainsRune("=!<>", rune(s[i-1])) {
			return "", "", false
		}
		target, src := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		if target == "" || src == "" {
			return "", "", false
		}
		return target, src, true
	}
	return "", "", false
}

func (d *Derive) Name() string { return "derive" }

// Target returns the derived field name.
func (d *Derive) Target() string { return d.target }

func (d *Derive) Apply(rec models.Record) (models.Record, Outcome, error) {
	v, err := d.prog.Eval(rec)
	if err != nil {
		return rec, Keep, errors.Wrap(err, errors.ErrorTypeTransform,
			fmt.Sprintf("derive %s failed, field omitted", d.target)).
			WithDetail("field", d.target)
	}
	return rec.Set(d.target, v), Keep, nil
}
