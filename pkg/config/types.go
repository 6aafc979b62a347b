package config

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	}
	return fmt.Errorf("line %d: expected string or list of strings", node.Line)
}

// Column is a named column with an optional type.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Columns accepts a mapping of column to type (cast) or a list of column
// names (select, drop). Mapping order is preserved.
type Columns []Column

// Names returns the column names in order.
func (c Columns) Names() []string {
	out := make([]string, len(c))
	for i, col := range c {
		out[i] = col.Name
	}
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Columns) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Columns, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var typ string
			if err := node.Content[i+1].Decode(&typ); err != nil {
				return err
			}
			out = append(out, Column{Name: node.Content[i].Value, Type: typ})
		}
		*c = out
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		out := make(Columns, len(names))
		for i, n := range names {
			out[i] = Column{Name: n}
		}
		*c = out
		return nil
	}
	return fmt.Errorf("line %d: columns must be a mapping or a list", node.Line)
}

// FieldSpec declares one validated field.
type FieldSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// FieldSpecs is an ordered field schema.
type FieldSpecs []FieldSpec

// UnmarshalYAML implements yaml.Unmarshaler. Each field accepts either a type
// name or a mapping {type, required}; type defaults to str and required to true.
func (f *FieldSpecs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}
	out := make(FieldSpecs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		spec := FieldSpec{Name: node.Content[i].Value, Type: "str", Required: true}
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			if val.Tag != "!!null" {
				spec.Type = val.Value
			}
		case yaml.MappingNode:
			var raw struct {
				Type     *string `yaml:"type"`
				Required *bool   `yaml:"required"`
			}
			if err := val.Decode(&raw); err != nil {
				return err
			}
			if raw.Type != nil {
				spec.Type = *raw.Type
			}
			if raw.Required != nil {
				spec.Required = *raw.Required
			}
		default:
			return fmt.Errorf("line %d: field %q must be a type or a mapping", val.Line, spec.Name)
		}
		out = append(out, spec)
	}
	*f = out
	return nil
}

// Issue is one configuration problem.
type Issue struct {
	Path    string
	Message string
}

// Issues collects configuration problems.
type Issues []Issue

// Add records a problem at path.
func (is *Issues) Add(path, format string, args ...interface{}) {
	*is = append(*is, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil when there are no issues, otherwise a config error listing
// all of them.
func (is Issues) Err() error {
	if len(is) == 0 {
		return nil
	}
	parts := make([]string, len(is))
	for i, issue := range is {
		parts[i] = issue.Path + " " + issue.Message
	}
	return errors.New(errors.ErrorTypeConfig, "invalid pipeline config: "+strings.Join(parts, "; ")).
		WithDetail("issues", []Issue(is))
}
