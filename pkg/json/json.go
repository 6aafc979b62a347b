// Package json wraps goccy/go-json with an order-preserving decoder.
//
// Decoding into map[string]any loses key order, which matters for records:
// field order flows from the source through every stage into the loader. The
// decoder here reads the token stream and produces models.Record for objects.
package json

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/ajitpratap0/pipeflow/pkg/models"
	gojson "github.com/goccy/go-json"
)

// Marshal encodes v with goccy/go-json.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalIndent encodes v with indentation.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *gojson.Encoder {
	return gojson.NewEncoder(w)
}

// NewDecoder returns a decoder configured for ordered value decoding.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// DecodeValue reads the next complete JSON value from dec. Objects become
// models.Record, arrays []any, integral numbers int64 and other numbers float64.
// dec must have UseNumber enabled (see NewDecoder).
func DecodeValue(dec *gojson.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

// DecodeToken finishes decoding the value that begins with tok, a token
// already read from dec. Callers use it to stream the elements of a top-level
// array after consuming its opening bracket.
func DecodeToken(dec *gojson.Decoder, tok gojson.Token) (any, error) {
	return decodeToken(dec, tok)
}

func decodeToken(dec *gojson.Decoder, tok gojson.Token) (any, error) {
	switch t := tok.(type) {
	case gojson.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case gojson.Number:
		return number(t), nil
	case float64:
		// Some decoder paths report numbers as float64 even with UseNumber.
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t), nil
		}
		return t, nil
	default:
		// string, bool, nil
		return t, nil
	}
}

func decodeObject(dec *gojson.Decoder) (models.Record, error) {
	var keys []string
	var values []any
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return models.Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return models.Record{}, fmt.Errorf("expected object key, got %v", tok)
		}
		v, err := DecodeValue(dec)
		if err != nil {
			return models.Record{}, err
		}
		keys = append(keys, key)
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return models.Record{}, err
	}
	return models.FromPairs(keys, values), nil
}

func decodeArray(dec *gojson.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		v, err := DecodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, err
	}
	return out, nil
}

func number(n gojson.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// DecodeBytes decodes a single JSON document from data, rejecting trailing
// content.
func DecodeBytes(data []byte) (any, error) {
	dec := NewDecoder(bytes.NewReader(data))
	v, err := DecodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return v, nil
}

// DecodeRecord decodes a single JSON object from data.
func DecodeRecord(data []byte) (models.Record, error) {
	v, err := DecodeBytes(data)
	if err != nil {
		return models.Record{}, err
	}
	rec, ok := v.(models.Record)
	if !ok {
		return models.Record{}, fmt.Errorf("expected JSON object, got %s", TypeName(v))
	}
	return rec, nil
}

// TypeName names the JSON kind of a decoded value.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case models.Record:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
