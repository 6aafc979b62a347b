package models

import (
	"time"
)

// FieldType names the value types a pipeline understands.
type FieldType string

const (
	FieldTypeInt      FieldType = "int"
	FieldTypeFloat    FieldType = "float"
	FieldTypeString   FieldType = "str"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeJSON     FieldType = "json"
	FieldTypeAny      FieldType = "any"
)

// ParseFieldType accepts the canonical names plus common aliases.
func ParseFieldType(s string) (FieldType, bool) {
	switch s {
	case "int", "integer", "int64":
		return FieldTypeInt, true
	case "float", "double", "number", "float64":
		return FieldTypeFloat, true
	case "str", "string", "text":
		return FieldTypeString, true
	case "bool", "boolean":
		return FieldTypeBool, true
	case "datetime", "timestamp", "time":
		return FieldTypeDatetime, true
	case "json":
		return FieldTypeJSON, true
	case "any":
		return FieldTypeAny, true
	}
	return "", false
}

// TypeOf reports the FieldType of a record value. nil reports "".
func TypeOf(v any) FieldType {
	switch v.(type) {
	case nil:
		return ""
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return FieldTypeInt
	case float32, float64:
		return FieldTypeFloat
	case string:
		return FieldTypeString
	case bool:
		return FieldTypeBool
	case time.Time:
		return FieldTypeDatetime
	default:
		return FieldTypeJSON
	}
}

// Schema describes the columns of a record stream.
type Schema struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field is one column of a Schema.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
	Primary  bool      `json:"primary,omitempty"`
}

// FieldNames returns the column names in order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
