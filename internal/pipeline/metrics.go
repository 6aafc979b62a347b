package pipeline

import (
	"math"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/json"
)

// Metrics counts what happened to the records of one run. Only the runner
// mutates it, once per record per stage.
//
// Every extracted record ends in exactly one of filtered out, transform
// failed, invalid, loaded or load failed, so for a finished run
//
//	Extracted == FilteredOut + TransformFailed + Valid + Invalid
//	Valid     == Loaded + LoadFailed
type Metrics struct {
	Extracted       int
	Transformed     int
	FilteredOut     int
	TransformFailed int
	Valid           int
	Invalid         int
	Loaded          int
	LoadFailed      int
	ExtractErrors   int
	Batches         int
	ErrorCount      int

	Duration time.Duration
	Stages   map[string]time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{Stages: make(map[string]time.Duration, 4)}
}

// Pending returns the valid records not yet handed to the loader.
func (m *Metrics) Pending() int {
	return m.Valid - m.Loaded - m.LoadFailed
}

// Balanced reports whether the conservation equations hold with nothing
// pending.
func (m *Metrics) Balanced() bool {
	return m.Extracted == m.FilteredOut+m.TransformFailed+m.Valid+m.Invalid &&
		m.Pending() == 0
}

func (m *Metrics) addStage(stage string, d time.Duration) {
	m.Stages[stage] += d
}

type metricsJSON struct {
	Extracted       int                `json:"records_extracted"`
	Transformed     int                `json:"records_transformed"`
	FilteredOut     int                `json:"records_filtered_out"`
	TransformFailed int                `json:"records_transform_failed"`
	Valid           int                `json:"records_valid"`
	Invalid         int                `json:"records_invalid"`
	Loaded          int                `json:"records_loaded"`
	LoadFailed      int                `json:"records_load_failed"`
	ExtractErrors   int                `json:"extract_errors"`
	Batches         int                `json:"batches"`
	ErrorCount      int                `json:"error_count"`
	Duration        float64            `json:"duration_seconds"`
	Stages          map[string]float64 `json:"stage_seconds"`
}

// MarshalJSON writes the report form, durations in seconds.
func (m Metrics) MarshalJSON() ([]byte, error) {
	stages := make(map[string]float64, len(m.Stages))
	for k, d := range m.Stages {
		stages[k] = seconds(d)
	}
	return json.Marshal(metricsJSON{
		Extracted:       m.Extracted,
		Transformed:     m.Transformed,
		FilteredOut:     m.FilteredOut,
		TransformFailed: m.TransformFailed,
		Valid:           m.Valid,
		Invalid:         m.Invalid,
		Loaded:          m.Loaded,
		LoadFailed:      m.LoadFailed,
		ExtractErrors:   m.ExtractErrors,
		Batches:         m.Batches,
		ErrorCount:      m.ErrorCount,
		Duration:        seconds(m.Duration),
		Stages:          stages,
	})
}

// seconds rounds to milliseconds.
func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
