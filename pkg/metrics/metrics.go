// Package metrics exposes pipeline run statistics as Prometheus metrics.
//
// A CLI run is short lived, so metrics are collected into a private registry
// and pushed to a Prometheus Pushgateway when the run ends rather than
// scraped.
//
// # Basic Usage
//
//	m := metrics.NewCollector("users")
//	m.AddRecords(metrics.OutcomeLoaded, 100)
//	timer := metrics.NewTimer()
//	loadBatch(batch)
//	m.ObserveStage(metrics.StageLoad, timer.Stop())
//	if err := m.Push(ctx, "http://pushgateway:9091"); err != nil {
//	    logger.Warn("push failed", zap.Error(err))
//	}
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "pipeflow"

// Record outcomes. Every extracted record ends in exactly one of the
// terminal outcomes; extracted counts all of them.
const (
	OutcomeExtracted       = "extracted"
	OutcomeFiltered        = "filtered"
	OutcomeTransformFailed = "transform_failed"
	OutcomeInvalid         = "invalid"
	OutcomeLoaded          = "loaded"
	OutcomeLoadFailed      = "load_failed"
)

// Stages timed by ObserveStage.
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageValidate  = "validate"
	StageLoad      = "load"
)

// Collector holds the metrics of one pipeline.
type Collector struct {
	pipeline string
	registry *prometheus.Registry

	records       *prometheus.CounterVec
	extractErrors prometheus.Counter
	errors        *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchSize     prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	runDuration   prometheus.Gauge
	lastSuccess   prometheus.Gauge
	lastStatus    *prometheus.GaugeVec
}

// NewCollector creates a collector for the named pipeline on a fresh
// registry.
func NewCollector(pipeline string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		pipeline: pipeline,
		registry: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records by outcome",
		}, []string{"outcome"}),
		extractErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_errors_total",
			Help:      "Malformed source units skipped by the extractor",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors recorded in the run report by stage",
		}, []string{"stage"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches handed to the loader by status",
		}, []string{"status"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_records",
			Help:      "Records per loaded batch",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per stage",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
		lastStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_status",
			Help:      "1 for the status of the last run, 0 otherwise",
		}, []string{"status"}),
	}
}

// AddRecords counts n records with the given outcome.
func (c *Collector) AddRecords(outcome string, n int) {
	if n > 0 {
		c.records.WithLabelValues(outcome).Add(float64(n))
	}
}

// IncExtractError counts one skipped source unit.
func (c *Collector) IncExtractError() {
	c.extractErrors.Inc()
}

// IncError counts one error report entry for stage.
func (c *Collector) IncError(stage string) {
	c.errors.WithLabelValues(stage).Inc()
}

// ObserveBatch records a batch and whether it was committed.
func (c *Collector) ObserveBatch(size int, committed bool) {
	status := "committed"
	if !committed {
		status = "failed"
	}
	c.batches.WithLabelValues(status).Inc()
	c.batchSize.Observe(float64(size))
}

// ObserveStage adds d to the time spent in stage.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records the final status and duration of a run.
func (c *Collector) ObserveRun(status string, d time.Duration, finished time.Time) {
	c.runDuration.Set(d.Seconds())
	c.lastStatus.Reset()
	c.lastStatus.WithLabelValues(status).Set(1)
	if status == "completed" {
		c.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Registry returns the registry holding this collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Push sends every metric to the Pushgateway at url, grouped by pipeline.
func (c *Collector) Push(ctx context.Context, url string) error {
	return push.New(url, namespace).
		Gatherer(c.registry).
		Grouping("pipeline", c.pipeline).
		PushContext(ctx)
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
