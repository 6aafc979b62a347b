// Package models provides the data model shared by every pipeline stage.
//
// A Record is an ordered, immutable mapping from field name to value. Stages
// never mutate a Record they receive; Set, Delete and Rename return a new
// Record and leave the receiver untouched, so a Record captured in an error
// report keeps the shape it had when the failure happened.
package models

import (
	"bytes"
	"iter"

	gojson "github.com/goccy/go-json"
)

// Record is an ordered mapping from field name to a scalar value.
// Values are string, int64, float64, bool, nil, time.Time, or (before
// flattening) a nested Record or []any.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{values: map[string]any{}}
}

// FromPairs builds a record from parallel key and value slices. A key that
// appears twice keeps its first position and its last value.
func FromPairs(keys []string, values []any) Record {
	r := Record{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]any, len(keys)),
	}
	for i, k := range keys {
		var v any
		if i < len(values) {
			v = values[i]
		}
		r.put(k, v)
	}
	return r
}

// FromMap builds a record from m using order for field order. Keys of m missing
// from order are appended in unspecified order.
func FromMap(m map[string]any, order ...string) Record {
	r := Record{
		keys:   make([]string, 0, len(m)),
		values: make(map[string]any, len(m)),
	}
	for _, k := range order {
		if v, ok := m[k]; ok {
			r.put(k, v)
		}
	}
	for k, v := range m {
		if _, ok := r.values[k]; !ok {
			r.put(k, v)
		}
	}
	return r
}

// put mutates r. It is only used while a record is under construction.
func (r *Record) put(k string, v any) {
	if _, ok := r.values[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.values[k] = v
}

func (r Record) clone(extra int) Record {
	c := Record{
		keys:   make([]string, len(r.keys), len(r.keys)+extra),
		values: make(map[string]any, len(r.keys)+extra),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// Keys returns the field names in order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value of field k.
func (r Record) Get(k string) (any, bool) {
	v, ok := r.values[k]
	return v, ok
}

// Value returns the value of field k or nil.
func (r Record) Value(k string) any {
	return r.values[k]
}

// Has reports whether field k is present.
func (r Record) Has(k string) bool {
	_, ok := r.values[k]
	return ok
}

// Set returns a copy of r with field k set to v. An existing field keeps its
// position; a new one is appended.
func (r Record) Set(k string, v any) Record {
	c := r.clone(1)
	c.put(k, v)
	return c
}

// Delete returns a copy of r without the named fields.
func (r Record) Delete(keys ...string) Record {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	c := Record{
		keys:   make([]string, 0, len(r.keys)),
		values: make(map[string]any, len(r.keys)),
	}
	for _, k := range r.keys {
		if _, ok := drop[k]; ok {
			continue
		}
		c.put(k, r.values[k])
	}
	return c
}

// Rename returns a copy of r with keys renamed per mapping. Unmapped keys pass
// through. When two fields end up with the same name the later value wins and
// the field keeps the position of the first.
func (r Record) Rename(mapping map[string]string) Record {
	c := Record{
		keys:   make([]string, 0, len(r.keys)),
		values: make(map[string]any, len(r.keys)),
	}
	for _, k := range r.keys {
		name := k
		if to, ok := mapping[k]; ok {
			name = to
		}
		c.put(name, r.values[k])
	}
	return c
}

// Select returns a copy of r holding only the named fields, in the given order.
func (r Record) Select(keys ...string) Record {
	c := Record{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]any, len(keys)),
	}
	for _, k := range keys {
		if v, ok := r.values[k]; ok {
			c.put(k, v)
		}
	}
	return c
}

// All iterates over fields in order.
func (r Record) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range r.keys {
			if !yield(k, r.values[k]) {
				return
			}
		}
	}
}

// ToMap returns a copy of the record as a plain map.
func (r Record) ToMap() map[string]any {
	m := make(map[string]any, len(r.keys))
	for k, v := range r.values {
		if nested, ok := v.(Record); ok {
			v = nested.ToMap()
		}
		m[k] = v
	}
	return m
}

// Equal reports whether both records hold the same fields in the same order
// with equal scalar values.
func (r Record) Equal(o Record) bool {
	if len(r.keys) != len(o.keys) {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		if !valuesEqual(r.values[k], o.values[k]) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case Record:
		bv, ok := b.(Record)
		return ok && av.Equal(bv)
	case []any, map[string]any:
		ab, aerr := gojson.Marshal(a)
		bb, berr := gojson.Marshal(b)
		return aerr == nil && berr == nil && bytes.Equal(ab, bb)
	default:
		return a == b
	}
}

// Flatten returns a copy of r where nested records are expanded into
// top-level fields joined with sep ("user" + "name" -> "user_name"). Slices
// are kept as values.
func (r Record) Flatten(sep string) Record {
	c := Record{
		keys:   make([]string, 0, len(r.keys)),
		values: make(map[string]any, len(r.keys)),
	}
	r.flattenInto(&c, "", sep)
	return c
}

func (r Record) flattenInto(dst *Record, prefix, sep string) {
	for _, k := range r.keys {
		name := k
		if prefix != "" {
			name = prefix + sep + k
		}
		switch v := r.values[k].(type) {
		case Record:
			if v.Len() == 0 {
				dst.put(name, nil)
				continue
			}
			v.flattenInto(dst, name, sep)
		case map[string]any:
			nested := FromMap(v)
			if nested.Len() == 0 {
				dst.put(name, nil)
				continue
			}
			nested.flattenInto(dst, name, sep)
		default:
			dst.put(name, v)
		}
	}
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := gojson.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := gojson.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
