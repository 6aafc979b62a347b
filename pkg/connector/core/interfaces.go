// Package core defines the contracts between the runner and its connectors.
package core

import (
	"context"
	"fmt"
	"iter"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Extractor produces records from a source.
//
// The sequence is lazy and finite. Each call to Extract re-reads the source
// from the start; a sequence that has been stopped cannot be resumed. A
// yielded error is either an *ExtractError, in which case that unit was
// skipped and iteration continues, or any other error, which is the last
// value the sequence yields.
type Extractor interface {
	Extract(ctx context.Context) iter.Seq2[models.Record, error]
}

// Loader writes batches of records to a destination.
//
// A non-nil error means the batch was not committed; the returned LoadResult
// then lists every record of the batch in Failures.
type Loader interface {
	Load(ctx context.Context, batch []models.Record) (LoadResult, error)
	Close() error
}

// LoadResult summarizes one batch write.
type LoadResult struct {
	Loaded   int
	Failures []LoadFailure
}

// Failed returns the number of records that were not written.
func (r LoadResult) Failed() int {
	n := 0
	for _, f := range r.Failures {
		n += len(f.Indexes)
	}
	return n
}

// LoadFailure names the records of a batch that shared one failure.
type LoadFailure struct {
	// Indexes are positions within the batch
	Indexes []int
	Err     error
}

// BatchFailure reports every record of a batch of size n as failed with err.
func BatchFailure(n int, err error) LoadResult {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return LoadResult{Failures: []LoadFailure{{Indexes: idx, Err: err}}}
}

// ExtractError is a recoverable failure on one source unit: a CSV row, a
// JSON line or array element, or an API page item.
type ExtractError struct {
	// Line is the 1-based line (or element) number, 0 when unknown
	Line int
	// Raw is the offending input as text
	Raw string
	Err error
}

// NewExtractError wraps cause as a recoverable extraction failure.
func NewExtractError(line int, raw string, cause error) *ExtractError {
	var err *errors.Error
	if cause == nil {
		err = errors.New(errors.ErrorTypeExtraction, "skipped malformed input")
	} else {
		err = errors.Wrap(cause, errors.ErrorTypeExtraction, "skipped malformed input")
	}
	return &ExtractError{
		Line: line,
		Raw:  raw,
		Err:  err.WithDetail("line", line),
	}
}

func (e *ExtractError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *ExtractError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err is an *ExtractError.
func IsRecoverable(err error) bool {
	var ee *ExtractError
	return errors.As(err, &ee)
}

// Info describes a connector kind for listings.
type Info struct {
	Name        string        `json:"name"`
	Type        ConnectorType `json:"type"`
	Description string        `json:"description"`
	Options     []string      `json:"options"`
}
