// Package validation checks records against a declared field schema.
package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// FieldError is one field-level violation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error lists every violation found on one record.
type Error struct {
	Index  int          `json:"index"`
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return fmt.Sprintf("record %d failed validation: %s", e.Index, strings.Join(parts, "; "))
}

// FieldNames returns the offending field names in order.
func (e *Error) FieldNames() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Field
	}
	return out
}

type rule struct {
	name     string
	typ      models.FieldType
	required bool
}

// Validator checks records against a schema. Fields not declared in the
// schema are ignored.
type Validator struct {
	model    string
	rules    []rule
	failFast bool
}

// New builds a validator from its configuration. A nil configuration yields
// a validator that accepts every record.
func New(cfg *config.ValidateConfig) (*Validator, error) {
	v := &Validator{model: config.DefaultModel}
	if cfg == nil {
		return v, nil
	}
	v.model = cfg.Model
	v.failFast = cfg.Mode == config.ValidateFailFast
	for _, f := range cfg.Fields {
		ft, ok := models.ParseFieldType(f.Type)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown type %q for field %q", f.Type, f.Name)
		}
		v.rules = append(v.rules, rule{name: f.Name, typ: ft, required: f.Required})
	}
	return v, nil
}

// Model returns the schema label.
func (v *Validator) Model() string { return v.model }

// FailFast reports whether validation stops at the first error.
func (v *Validator) FailFast() bool { return v.failFast }

// Validate checks rec. index identifies the record in the returned error.
// Values are never coerced.
func (v *Validator) Validate(index int, rec models.Record) (models.Record, *Error) {
	var fields []FieldError
	for _, r := range v.rules {
		val, present := rec.Get(r.name)
		switch {
		case !present || val == nil:
			if r.required {
				fields = append(fields, FieldError{Field: r.name, Reason: "required field missing"})
			}
		case !matches(val, r.typ):
			fields = append(fields, FieldError{
				Field:  r.name,
				Reason: fmt.Sprintf("expected %s, got %s", r.typ, describe(val)),
			})
		}
		if v.failFast && len(fields) > 0 {
			break
		}
	}
	if len(fields) > 0 {
		return rec, &Error{Index: index, Fields: fields}
	}
	return rec, nil
}

func matches(v any, t models.FieldType) bool {
	actual := models.TypeOf(v)
	switch t {
	case models.FieldTypeAny:
		return true
	case models.FieldTypeInt:
		if actual == models.FieldTypeFloat {
			f, _ := v.(float64)
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		}
		return actual == models.FieldTypeInt
	case models.FieldTypeFloat:
		return actual == models.FieldTypeFloat || actual == models.FieldTypeInt
	case models.FieldTypeDatetime:
		if s, ok := v.(string); ok {
			_, err := time.Parse(time.RFC3339Nano, s)
			return err == nil
		}
		return actual == models.FieldTypeDatetime
	default:
		return actual == t
	}
}

func describe(v any) string {
	if t := models.TypeOf(v); t != "" {
		return string(t)
	}
	return "null"
}
