package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector("users")

	c.AddRecords(OutcomeExtracted, 5)
	c.AddRecords(OutcomeLoaded, 3)
	c.AddRecords(OutcomeInvalid, 2)
	c.AddRecords(OutcomeFiltered, 0)
	c.IncExtractError()
	c.IncError("validate")
	c.IncError("validate")

	assert.Equal(t, 5.0, testutil.ToFloat64(c.records.WithLabelValues(OutcomeExtracted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.records.WithLabelValues(OutcomeLoaded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.extractErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.errors.WithLabelValues("validate")))

	// zero adds do not create a series
	assert.Equal(t, 3, testutil.CollectAndCount(c.records))
}

func TestCollector_RunAndBatches(t *testing.T) {
	c := NewCollector("users")

	c.ObserveBatch(100, true)
	c.ObserveBatch(40, false)
	c.ObserveStage(StageLoad, 20*time.Millisecond)
	c.ObserveRun("failed", 2*time.Second, time.Now())
	c.ObserveRun("completed", 3*time.Second, time.Unix(1700000000, 0))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.batches.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batches.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.runDuration))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(c.lastStatus))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lastStatus.WithLabelValues("completed")))

	expected := `
# HELP pipeflow_batches_total Batches handed to the loader by status
# TYPE pipeflow_batches_total counter
pipeflow_batches_total{status="committed"} 1
pipeflow_batches_total{status="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "pipeflow_batches_total"))
}

func TestCollector_Push(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCollector("users")
	c.AddRecords(OutcomeLoaded, 7)
	require.NoError(t, c.Push(context.Background(), srv.URL))

	assert.Equal(t, "/metrics/job/pipeflow/pipeline/users", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
