package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"github.com/spf13/cast"
)

// Cast converts named fields to a target type. Absent fields are skipped and
// null values stay null. A value that cannot be converted fails the record.
type Cast struct {
	columns []castColumn
}

type castColumn struct {
	name string
	to   models.FieldType
}

// NewCast creates a cast step.
func NewCast(columns config.Columns) (*Cast, error) {
	c := &Cast{columns: make([]castColumn, 0, len(columns))}
	for _, col := range columns {
		ft, ok := models.ParseFieldType(col.Type)
		if !ok || ft == models.FieldTypeJSON || ft == models.FieldTypeAny {
			return nil, fmt.Errorf("unknown cast type %q for column %q", col.Type, col.Name)
		}
		c.columns = append(c.columns, castColumn{name: col.Name, to: ft})
	}
	return c, nil
}

func (c *Cast) Name() string { return "cast" }

func (c *Cast) Apply(rec models.Record) (models.Record, Outcome, error) {
	out := rec
	for _, col := range c.columns {
		v, ok := out.Get(col.name)
		if !ok || v == nil {
			continue
		}
		converted, err := Convert(v, col.to)
		if err != nil {
			return rec, Fail, errors.Wrapf(err, errors.ErrorTypeTransform,
				"cannot cast column %q value %v to %s", col.name, v, col.to).
				WithDetail("field", col.name)
		}
		out = out.Set(col.name, converted)
	}
	return out, Keep, nil
}

// datetimeLayouts are tried in order when parsing datetime strings.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Convert converts v to the target type.
func Convert(v any, to models.FieldType) (any, error) {
	switch to {
	case models.FieldTypeInt:
		return toInt(v)
	case models.FieldTypeFloat:
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		return cast.ToFloat64E(v)
	case models.FieldTypeString:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.RFC3339Nano), nil
		}
		return cast.ToStringE(v)
	case models.FieldTypeBool:
		return toBool(v)
	case models.FieldTypeDatetime:
		return toDatetime(v)
	}
	return nil, fmt.Errorf("unsupported target type %q", to)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", x)
		}
		return n, nil
	case float64:
		// 2^63 is the first float64 past the int64 range
		if math.IsNaN(x) || x < -(1<<63) || x >= 1<<63 {
			return 0, fmt.Errorf("cannot convert %v to integer", x)
		}
		return int64(x), nil
	case float32:
		return toInt(float64(x))
	}
	return cast.ToInt64E(v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off", "":
			return false, nil
		}
		return cast.ToBoolE(strings.TrimSpace(x))
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	}
	return cast.ToBoolE(v)
}

func toDatetime(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid datetime %q", s)
	}
	return cast.ToTimeE(v)
}
