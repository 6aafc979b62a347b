// Package csv implements the delimited-text extractor.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/pipeflow/pkg/compression"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// CSVSource streams one record per data row. Values are strings; typing is
// left to the cast step.
type CSVSource struct {
	path      string
	delimiter rune
	encoding  encoding.Encoding
	hasHeader bool
	logger    *zap.Logger
}

// NewCSVSource builds a CSV extractor from the extract section.
func NewCSVSource(cfg config.ExtractConfig, logger *zap.Logger) (*CSVSource, error) {
	if cfg.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "csv extractor requires path")
	}

	delim := cfg.Delimiter
	if delim == "" {
		delim = config.DefaultDelimiter
	}
	if delim == `\t` {
		delim = "\t"
	}
	r, size := utf8.DecodeRuneInString(delim)
	if size != len(delim) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return nil, errors.Newf(errors.ErrorTypeConfig, "invalid csv delimiter %q", cfg.Delimiter)
	}

	enc, err := ResolveEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CSVSource{
		path:      cfg.Path,
		delimiter: r,
		encoding:  enc,
		hasHeader: cfg.CSVHasHeader(),
		logger:    logger.With(zap.String("component", "csv_source"), zap.String("path", cfg.Path)),
	}, nil
}

// ResolveEncoding maps a WHATWG label ("utf-8", "latin1", "windows-1252",
// "shift_jis", ...) to its decoder. UTF-8 input has a leading BOM stripped.
func ResolveEncoding(label string) (encoding.Encoding, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "", "utf-8", "utf8", "utf-8-sig", "utf_8":
		return unicode.UTF8BOM, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "unknown encoding %q", label)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return unicode.UTF8BOM, nil
	}
	return enc, nil
}

// Extract implements core.Extractor.
func (s *CSVSource) Extract(ctx context.Context) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		file, err := compression.Open(s.path)
		if err != nil {
			yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeExtraction, "open csv source"))
			return
		}
		defer file.Close()

		rec := &recorder{r: transform.NewReader(file, s.encoding.NewDecoder())}
		reader := csv.NewReader(rec)
		reader.Comma = s.delimiter
		reader.FieldsPerRecord = -1

		var header []string
		rows, skipped := 0, 0
		var prevOffset int64

		for {
			if err := ctx.Err(); err != nil {
				yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeCanceled, "csv extraction canceled"))
				return
			}

			row, err := reader.Read()
			offset := reader.InputOffset()
			raw := rec.slice(prevOffset, offset)
			rec.discard(offset)
			prevOffset = offset

			if err == io.EOF {
				break
			}
			if err != nil {
				var pe *csv.ParseError
				if !errors.As(err, &pe) {
					yield(models.Record{}, errors.Wrap(err, errors.ErrorTypeExtraction, "read csv source"))
					return
				}
				skipped++
				if !yield(models.Record{}, core.NewExtractError(pe.StartLine, raw, pe.Err)) {
					return
				}
				continue
			}

			line, _ := reader.FieldPos(0)

			if header == nil && s.hasHeader {
				header = row
				continue
			}
			if header == nil {
				header = make([]string, len(row))
				for i := range header {
					header[i] = fmt.Sprintf("column_%d", i+1)
				}
			}

			if len(row) != len(header) {
				skipped++
				cause := errors.Newf(errors.ErrorTypeExtraction, "expected %d fields, got %d", len(header), len(row))
				if !yield(models.Record{}, core.NewExtractError(line, raw, cause)) {
					return
				}
				continue
			}

			values := make([]any, len(row))
			for i, v := range row {
				values[i] = v
			}
			rows++
			if !yield(models.FromPairs(header, values), nil) {
				return
			}
		}

		s.logger.Debug("csv source exhausted", zap.Int("rows", rows), zap.Int("skipped", skipped))
	}
}

// recorder keeps the bytes handed to the csv reader so a malformed row can
// be reported verbatim. Offsets are positions in the decoded stream.
type recorder struct {
	r    io.Reader
	buf  []byte
	base int64
}

func (rc *recorder) Read(p []byte) (int, error) {
	n, err := rc.r.Read(p)
	rc.buf = append(rc.buf, p[:n]...)
	return n, err
}

func (rc *recorder) slice(from, to int64) string {
	lo, hi := from-rc.base, to-rc.base
	if lo < 0 {
		lo = 0
	}
	if hi > int64(len(rc.buf)) {
		hi = int64(len(rc.buf))
	}
	if lo >= hi {
		return ""
	}
	return strings.TrimRight(string(rc.buf[lo:hi]), "\r\n")
}

func (rc *recorder) discard(upTo int64) {
	k := upTo - rc.base
	if k <= 0 {
		return
	}
	if k > int64(len(rc.buf)) {
		k = int64(len(rc.buf))
	}
	rc.buf = rc.buf[k:]
	rc.base += k
}
