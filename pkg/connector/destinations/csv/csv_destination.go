// Package csv implements the delimited-text loader.
//
// The header is taken from the first record; later records are aligned to
// it. Output is flushed after every batch and compressed when the path ends
// in a known compression extension (".gz", ".zst", ".lz4", ...).
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pipeflow/pkg/compression"
	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	jsonx "github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

type flusher interface {
	Flush() error
}

// CSVDestination writes records to a single CSV file.
type CSVDestination struct {
	path      string
	delimiter rune
	append    bool
	algorithm compression.Algorithm
	logger    *zap.Logger

	file       *os.File
	compressor io.WriteCloser
	writer     *csv.Writer

	headers        []string
	headerWritten  bool
	recordsWritten int
}

// NewCSVDestination builds a CSV loader. The file is opened on the first
// batch.
func NewCSVDestination(cfg config.LoadConfig, logger *zap.Logger) (*CSVDestination, error) {
	if cfg.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "csv loader requires path")
	}
	if cfg.Mode == config.ModeUpsert {
		return nil, errors.New(errors.ErrorTypeConfig, "csv loader does not support upsert")
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

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CSVDestination{
		path:      cfg.Path,
		delimiter: r,
		append:    cfg.Append,
		algorithm: compression.Detect(cfg.Path),
		logger:    logger.With(zap.String("component", "csv_destination"), zap.String("path", cfg.Path)),
	}, nil
}

func (d *CSVDestination) open() error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if d.append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND

		if info, err := os.Stat(d.path); err == nil && info.Size() > 0 {
			d.headerWritten = true
			if d.algorithm == compression.None {
				d.headers = readHeader(d.path, d.delimiter)
			}
		}
	}

	file, err := os.OpenFile(d.path, flags, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "open csv destination")
	}

	cw, err := compression.NewWriter(file, d.algorithm)
	if err != nil {
		file.Close()
		return err
	}

	d.file = file
	d.compressor = cw
	d.writer = csv.NewWriter(cw)
	d.writer.Comma = d.delimiter
	return nil
}

// readHeader returns the first row of an existing plain CSV file, or nil.
func readHeader(path string, delimiter rune) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil
	}
	return header
}

// Load implements core.Loader. Any write failure fails the whole batch.
func (d *CSVDestination) Load(ctx context.Context, batch []models.Record) (core.LoadResult, error) {
	if len(batch) == 0 {
		return core.LoadResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		err = errors.Wrap(err, errors.ErrorTypeCanceled, "load canceled")
		return core.BatchFailure(len(batch), err), err
	}

	if d.writer == nil {
		if err := d.open(); err != nil {
			return core.BatchFailure(len(batch), err), err
		}
	}

	if d.headers == nil {
		d.headers = batch[0].Keys()
	}
	if !d.headerWritten {
		if err := d.writer.Write(d.headers); err != nil {
			err = errors.Wrap(err, errors.ErrorTypeLoad, "write csv header")
			return core.BatchFailure(len(batch), err), err
		}
		d.headerWritten = true
	}

	row := make([]string, len(d.headers))
	for _, rec := range batch {
		for i, h := range d.headers {
			row[i] = formatValue(rec.Value(h))
		}
		if err := d.writer.Write(row); err != nil {
			err = errors.Wrap(err, errors.ErrorTypeLoad, "write csv row")
			return core.BatchFailure(len(batch), err), err
		}
	}

	if err := d.flush(); err != nil {
		return core.BatchFailure(len(batch), err), err
	}

	d.recordsWritten += len(batch)
	return core.LoadResult{Loaded: len(batch)}, nil
}

func (d *CSVDestination) flush() error {
	d.writer.Flush()
	if err := d.writer.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLoad, "flush csv writer")
	}
	if f, ok := d.compressor.(flusher); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeLoad, "flush compressor")
		}
	}
	return nil
}

// formatValue renders a record value as CSV text. nil is the empty string.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case models.Record, []any, map[string]any:
		b, err := jsonx.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return cast.ToString(v)
	}
}

// Close flushes buffered output and closes the file.
func (d *CSVDestination) Close() error {
	if d.writer == nil {
		return nil
	}

	flushErr := d.flush()
	compErr := d.compressor.Close()
	fileErr := d.file.Close()
	d.writer = nil

	d.logger.Info("csv destination closed", zap.Int("records", d.recordsWritten))

	switch {
	case flushErr != nil:
		return flushErr
	case compErr != nil:
		return errors.Wrap(compErr, errors.ErrorTypeFile, "close compressor")
	case fileErr != nil:
		return errors.Wrap(fileErr, errors.ErrorTypeFile, "close csv destination")
	}
	return nil
}
