// Package json implements the JSON array and JSON Lines extractors.
package json

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"iter"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pipeflow/pkg/compression"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	jsonx "github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// FlattenSeparator joins nested object keys ("user.name" -> "user_name").
const FlattenSeparator = "_"

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 64 * 1024 * 1024

// JSONSource streams records from a JSON document or a JSON Lines file.
type JSONSource struct {
	path   string
	lines  bool
	logger *zap.Logger
}

// NewJSONSource builds an extractor for cfg.Type "json" or "jsonl".
func NewJSONSource(cfg config.ExtractConfig, logger *zap.Logger) (*JSONSource, error) {
	if cfg.Path == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "%s extractor requires path", cfg.Type)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONSource{
		path:   cfg.Path,
		lines:  cfg.Type == config.ExtractJSONL,
		logger: logger.With(zap.String("component", cfg.Type+"_source"), zap.String("path", cfg.Path)),
	}, nil
}

// Extract implements core.Extractor.
func (s *JSONSource) Extract(ctx context.Context) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		file, err := compression.Open(s.path)
		if err != nil {
			yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeExtraction, "open json source"))
			return
		}
		defer file.Close()

		if s.lines {
			s.extractLines(ctx, file, yield)
			return
		}
		s.extractDocument(ctx, file, yield)
	}
}

// extractDocument streams the elements of a top-level array one at a time. A
// top-level object is a single record.
func (s *JSONSource) extractDocument(ctx context.Context, r io.Reader, yield func(models.Record, error) bool) {
	dec := jsonx.NewDecoder(r)

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return
	}
	if err != nil {
		yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeExtraction, "decode json source"))
		return
	}

	if delim, ok := tok.(gojson.Delim); !ok || delim != '[' {
		v, err := jsonx.DecodeToken(dec, tok)
		if err != nil {
			yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeExtraction, "decode json source"))
			return
		}
		rec, ok := v.(models.Record)
		if !ok {
			yield(models.Record{}, errors.Newf(errors.ErrorTypeExtraction, "unexpected JSON root type: %s", jsonx.TypeName(v)))
			return
		}
		yield(rec.Flatten(FlattenSeparator), nil)
		return
	}

	index := 0
	for dec.More() {
		if err := ctx.Err(); err != nil {
			yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeCanceled, "json extraction canceled"))
			return
		}
		index++

		v, err := jsonx.DecodeValue(dec)
		if err != nil {
			// the stream cannot be resynchronized after a syntax error
			yield(models.Record{}, errors.Wrapf(err, errors.ErrorTypeExtraction, "decode array element %d", index))
			return
		}

		rec, ok := v.(models.Record)
		if !ok {
			raw, _ := jsonx.Marshal(v)
			cause := errors.Newf(errors.ErrorTypeExtraction, "expected JSON object, got %s", jsonx.TypeName(v))
			if !yield(models.Record{}, core.NewExtractError(index, string(raw), cause)) {
				return
			}
			continue
		}

		if !yield(rec.Flatten(FlattenSeparator), nil) {
			return
		}
	}

	s.logger.Debug("json source exhausted", zap.Int("elements", index))
}

func (s *JSONSource) extractLines(ctx context.Context, r io.Reader, yield func(models.Record, error) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeCanceled, "jsonl extraction canceled"))
			return
		}
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := jsonx.DecodeRecord(line)
		if err != nil {
			if !yield(models.Record{}, core.NewExtractError(lineNo, string(line), err)) {
				return
			}
			continue
		}

		if !yield(rec.Flatten(FlattenSeparator), nil) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeExtraction, "read jsonl source"))
		return
	}

	s.logger.Debug("jsonl source exhausted", zap.Int("lines", lineNo))
}
