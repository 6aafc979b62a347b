// Package schema infers column types from records and compares schemas.
package schema

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// InferredType is the inference result for one field.
type InferredType struct {
	Name string           `json:"name"`
	Type models.FieldType `json:"type"`
	// Format names the type a string column could be cast to ("int",
	// "datetime", ...). Only set when DetectStringFormats is on.
	Format     string  `json:"format,omitempty"`
	Confidence float64 `json:"confidence"`
	Nullable   bool    `json:"nullable"`
	Examples   []any   `json:"examples,omitempty"`
}

// TypeInferenceEngine infers a schema from sample records.
type TypeInferenceEngine struct {
	// DetectStringFormats classifies string values by content
	DetectStringFormats bool
	// ConfidenceThreshold is the share of non-null values that must agree
	// on a type; below it the field falls back to str
	ConfidenceThreshold float64
	// MaxExamples caps the distinct example values kept per field
	MaxExamples int

	timestampPatterns []*regexp.Regexp
}

// NewTypeInferenceEngine creates an engine with default thresholds.
func NewTypeInferenceEngine() *TypeInferenceEngine {
	return &TypeInferenceEngine{
		ConfidenceThreshold: 0.95,
		MaxExamples:         3,
		timestampPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`),
			regexp.MustCompile(`^\d{2}/\d{2}/\d{4}( \d{2}:\d{2}(:\d{2})?)?$`),
		},
	}
}

// InferRecord derives a schema from a single record. A nil value gives a
// nullable str column. This is what the SQL loader uses to create a table
// from the first record it sees.
func InferRecord(name string, rec models.Record) models.Schema {
	s := models.Schema{Name: name, Fields: make([]models.Field, 0, rec.Len())}
	for k, v := range rec.All() {
		t := models.TypeOf(v)
		if t == "" {
			t = models.FieldTypeString
		}
		s.Fields = append(s.Fields, models.Field{Name: k, Type: t, Nullable: true})
	}
	return s
}

// InferSchema infers a schema from samples. Field order is first-seen order.
func (e *TypeInferenceEngine) InferSchema(name string, samples []models.Record) (models.Schema, []InferredType) {
	var order []string
	values := make(map[string][]any)
	for _, rec := range samples {
		for k, v := range rec.All() {
			if _, seen := values[k]; !seen {
				order = append(order, k)
			}
			values[k] = append(values[k], v)
		}
	}

	s := models.Schema{Name: name, Fields: make([]models.Field, 0, len(order))}
	details := make([]InferredType, 0, len(order))
	for _, k := range order {
		vals := values[k]
		// a field absent from some samples is nullable
		for len(vals) < len(samples) {
			vals = append(vals, nil)
		}
		inferred := e.InferType(k, vals)
		details = append(details, inferred)
		s.Fields = append(s.Fields, models.Field{Name: k, Type: inferred.Type, Nullable: inferred.Nullable})
	}
	return s, details
}

// InferType infers the type of one field from its sample values.
func (e *TypeInferenceEngine) InferType(name string, values []any) InferredType {
	result := InferredType{Name: name, Type: models.FieldTypeString, Nullable: true}

	counts := make(map[models.FieldType]int)
	formats := make(map[string]int)
	nonNull := 0
	hasNull := false

	for _, v := range values {
		if v == nil {
			hasNull = true
			continue
		}
		nonNull++
		t := models.TypeOf(v)
		counts[t]++
		if s, ok := v.(string); ok && e.DetectStringFormats {
			formats[e.detectFormat(s)]++
		}
		if t != models.FieldTypeJSON && len(result.Examples) < e.MaxExamples && !containsValue(result.Examples, v) {
			result.Examples = append(result.Examples, v)
		}
	}

	result.Nullable = hasNull
	if nonNull == 0 {
		return result
	}

	// int and float mix widens to float
	if counts[models.FieldTypeInt] > 0 && counts[models.FieldTypeFloat] > 0 {
		counts[models.FieldTypeFloat] += counts[models.FieldTypeInt]
		delete(counts, models.FieldTypeInt)
	}

	var dominant models.FieldType
	best := 0
	for t, n := range counts {
		if n > best || (n == best && t < dominant) {
			dominant, best = t, n
		}
	}

	result.Confidence = float64(best) / float64(nonNull)
	if result.Confidence >= e.ConfidenceThreshold || len(counts) == 1 {
		result.Type = dominant
	}

	if result.Type == models.FieldTypeString && e.DetectStringFormats {
		for f, n := range formats {
			if f != "" && float64(n)/float64(nonNull) >= 0.8 {
				result.Format = f
			}
		}
	}

	return result
}

// detectFormat names the narrowest type s parses as, or "".
func (e *TypeInferenceEngine) detectFormat(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return string(models.FieldTypeInt)
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return string(models.FieldTypeFloat)
	}
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return string(models.FieldTypeBool)
	}
	for _, p := range e.timestampPatterns {
		if p.MatchString(s) {
			return string(models.FieldTypeDatetime)
		}
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return string(models.FieldTypeDatetime)
	}
	return ""
}

func containsValue(list []any, v any) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
