// Package testutil provides fixtures for testing pipelines: in-memory
// extractors and loaders, record builders and file helpers.
package testutil

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// Rec builds a record from alternating keys and values:
// Rec("name", "Ann", "age", int64(30)).
func Rec(kv ...any) models.Record {
	keys := make([]string, 0, len(kv)/2)
	vals := make([]any, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		keys = append(keys, kv[i].(string))
		vals = append(vals, kv[i+1])
	}
	return models.FromPairs(keys, vals)
}

// Item is one value yielded by a SliceExtractor.
type Item struct {
	Record models.Record
	Err    error
}

// Records wraps records as items.
func Records(recs ...models.Record) []Item {
	items := make([]Item, len(recs))
	for i, r := range recs {
		items[i] = Item{Record: r}
	}
	return items
}

// ExtractorFunc adapts a function to core.Extractor.
type ExtractorFunc func(ctx context.Context) iter.Seq2[models.Record, error]

// Extract implements core.Extractor.
func (f ExtractorFunc) Extract(ctx context.Context) iter.Seq2[models.Record, error] { return f(ctx) }

// SliceExtractor yields items in order. Each call to Extract starts over.
func SliceExtractor(items ...Item) core.Extractor {
	return ExtractorFunc(func(context.Context) iter.Seq2[models.Record, error] {
		return func(yield func(models.Record, error) bool) {
			for _, it := range items {
				if !yield(it.Record, it.Err) {
					return
				}
			}
		}
	})
}

// MemoryLoader keeps committed batches in memory. Batches whose 1-based call
// number is in FailOn are rejected with a load error.
type MemoryLoader struct {
	FailOn map[int]bool
	// Panic makes Load panic with this value when non-nil
	Panic any

	mu      sync.Mutex
	calls   int
	batches [][]models.Record
	closed  bool
}

// Load implements core.Loader.
func (l *MemoryLoader) Load(ctx context.Context, batch []models.Record) (core.LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.Panic != nil {
		panic(l.Panic)
	}
	if err := ctx.Err(); err != nil {
		err = errors.Wrap(err, errors.ErrorTypeCanceled, "batch not committed")
		return core.BatchFailure(len(batch), err), err
	}
	if l.FailOn[l.calls] {
		err := errors.New(errors.ErrorTypeLoad, "constraint violated")
		return core.BatchFailure(len(batch), err), err
	}
	l.batches = append(l.batches, append([]models.Record(nil), batch...))
	return core.LoadResult{Loaded: len(batch)}, nil
}

// Close implements core.Loader.
func (l *MemoryLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Calls returns the number of Load calls.
func (l *MemoryLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Batches returns the committed batches.
func (l *MemoryLoader) Batches() [][]models.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batches
}

// Loaded returns every committed record in load order.
func (l *MemoryLoader) Loaded() []models.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Record
	for _, b := range l.batches {
		out = append(out, b...)
	}
	return out
}

// Closed reports whether Close was called.
func (l *MemoryLoader) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
