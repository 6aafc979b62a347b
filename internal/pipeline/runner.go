// Package pipeline runs a configured pipeline.
//
// The Runner pulls records from the extractor one at a time, passes each
// through the transform chain and the validator, and hands valid records to
// the loader in batches of load.batch_size. Everything happens on the calling
// goroutine; the only suspension points are inside the extractor (file and
// network I/O, rate limiting) and the loader.
//
// Failures that affect a single record are recovered and recorded in the
// run's ErrorReport. A non-recoverable extractor error, cancellation of the
// context, a failed batch (unless options.stop_on_load_failure is false) or
// an error report longer than options.max_errors end the run.
//
// # Basic Usage
//
//	cfg, err := config.Load("pipeline.yaml")
//	if err != nil {
//	    return err
//	}
//	runner, err := pipeline.New(cfg, pipeline.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	result := runner.Run(ctx)
//	if result.Status != pipeline.StatusCompleted {
//	    logger.Error("run failed", zap.Error(result.Cause))
//	}
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/connector/core"
	"github.com/ajitpratap0/pipeflow/pkg/connector/registry"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/logger"
	"github.com/ajitpratap0/pipeflow/pkg/metrics"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"github.com/ajitpratap0/pipeflow/pkg/observability"
	"github.com/ajitpratap0/pipeflow/pkg/transform"
	"github.com/ajitpratap0/pipeflow/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Stage names used in metrics and error entries.
const (
	StageExtract   = metrics.StageExtract
	StageTransform = metrics.StageTransform
	StageValidate  = metrics.StageValidate
	StageLoad      = metrics.StageLoad
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// State is the runner's position in its state machine.
type State int32

const (
	StateIdle State = iota
	StateExtracting
	StateTransforming
	StateValidating
	StateLoading
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateTransforming:
		return "transforming"
	case StateValidating:
		return "validating"
	case StateLoading:
		return "loading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// RunContext carries the state scoped to one run. It is passed explicitly to
// every stage.
type RunContext struct {
	RunID    string
	Pipeline string
	Logger   *zap.Logger
	Metrics  *Metrics
	Report   *ErrorReport
}

func (rc *RunContext) record(e ErrorEntry) {
	rc.Report.Add(e)
	rc.Metrics.ErrorCount = rc.Report.Len()
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Pipeline string
	Status   string
	// State is StateCompleted or StateFailed
	State   State
	Metrics Metrics
	Errors  []ErrorEntry
	// Cause is the error that ended a failed run
	Cause      error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the run completed.
func (r *Result) Succeeded() bool {
	return r.Status == StatusCompleted
}

type resultJSON struct {
	RunID      string       `json:"run_id"`
	Pipeline   string       `json:"pipeline"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Metrics    Metrics      `json:"metrics"`
	Errors     []ErrorEntry `json:"errors"`
	Cause      *string      `json:"cause"`
}

// MarshalJSON writes the run report.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		RunID:      r.RunID,
		Pipeline:   r.Pipeline,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Metrics:    r.Metrics,
		Errors:     r.Errors,
	}
	if out.Errors == nil {
		out.Errors = []ErrorEntry{}
	}
	if r.Cause != nil {
		msg := r.Cause.Error()
		out.Cause = &msg
	}
	return json.Marshal(out)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithCollector publishes run metrics to c.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Runner) { r.collector = c }
}

// WithExtractor replaces the extractor built from the configuration.
func WithExtractor(e core.Extractor) Option {
	return func(r *Runner) { r.extractor = e }
}

// WithLoader replaces the loader built from the configuration. The runner
// does not close a loader it did not build.
func WithLoader(l core.Loader) Option {
	return func(r *Runner) { r.loader = l }
}

// Runner executes one pipeline configuration.
type Runner struct {
	cfg       config.PipelineConfig
	extractor core.Extractor
	loader    core.Loader
	chain     *transform.Chain
	validator *validation.Validator
	collector *metrics.Collector
	logger    *zap.Logger

	state atomic.Int32
}

// New builds a runner. The configuration is completed with defaults and
// validated; the transform chain, validator and extractor are built here so
// that configuration errors surface before any record is read.
func New(cfg *config.PipelineConfig, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "pipeline config is nil")
	}

	r := &Runner{cfg: *cfg}
	r.cfg.ApplyDefaults()
	if err := r.cfg.Check(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.logger = r.logger.With(zap.String("component", "runner"), zap.String("pipeline", r.cfg.Name))

	var err error
	if r.chain, err = transform.NewChain(r.cfg.Transforms, r.logger); err != nil {
		return nil, err
	}
	if r.validator, err = validation.New(r.cfg.Validate); err != nil {
		return nil, err
	}
	if r.extractor == nil {
		if r.extractor, err = registry.NewExtractor(r.cfg.Extract, r.logger); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config returns the effective configuration, defaults applied.
func (r *Runner) Config() config.PipelineConfig { return r.cfg }

// State returns the current state. It is safe to call from any goroutine.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) { r.state.Store(int32(s)) }

// Run executes the pipeline once. It always returns a Result; failures,
// including panics in a stage, are reported through Result.Cause.
func (r *Runner) Run(ctx context.Context) (result *Result) {
	runID := uuid.NewString()
	started := time.Now()

	rc := &RunContext{
		RunID:    runID,
		Pipeline: r.cfg.Name,
		Logger:   r.logger.With(zap.String("run_id", runID)),
		Metrics:  newMetrics(),
		Report:   &ErrorReport{},
	}

	ctx = logger.ContextWithRun(ctx, runID, r.cfg.Name)
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("pipeline", r.cfg.Name),
		attribute.String("run.id", runID),
	)

	rc.Logger.Info("starting pipeline",
		zap.String("extract", r.cfg.Extract.Type),
		zap.Strings("transforms", r.chain.Names()),
		zap.String("load", r.cfg.Load.Type),
		zap.Int("batch_size", r.cfg.Load.BatchSize))

	var cause error
	defer func() {
		if p := recover(); p != nil {
			cause = errors.Newf(errors.ErrorTypeInternal, "panic: %v", p)
			rc.Logger.Error("pipeline panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
		result = r.finish(rc, started, cause)
		span.SetAttribute("records.extracted", result.Metrics.Extracted)
		span.SetAttribute("records.loaded", result.Metrics.Loaded)
		span.SetAttribute("errors", result.Metrics.ErrorCount)
		span.End(cause)
	}()

	cause = r.execute(ctx, rc)
	return result
}

func (r *Runner) execute(ctx context.Context, rc *RunContext) (err error) {
	r.chain.Reset()

	loader := r.loader
	if loader == nil {
		if loader, err = registry.NewLoader(r.cfg.Load, rc.Logger); err != nil {
			return err
		}
		defer func() {
			if cerr := loader.Close(); cerr != nil {
				rc.Logger.Warn("failed to close loader", zap.Error(cerr))
				if err == nil {
					err = errors.Wrap(cerr, errors.ErrorTypeLoad, "failed to close loader")
				}
			}
		}()
	}

	size := r.cfg.Load.BatchSize
	b := &batch{records: make([]models.Record, 0, size), indexes: make([]int, 0, size)}
	index := 0

	r.setState(StateExtracting)
	pulled := time.Now()
	for rec, xerr := range r.extractor.Extract(ctx) {
		rc.Metrics.addStage(StageExtract, time.Since(pulled))

		if xerr != nil {
			if !core.IsRecoverable(xerr) {
				if cerr := ctx.Err(); cerr != nil {
					return canceled(cerr)
				}
				return typed(xerr, errors.ErrorTypeExtraction, "extraction failed")
			}
			r.extractFailed(rc, xerr)
		} else {
			r.process(rc, index, rec, b)
			index++
			if b.len() >= size {
				if err := r.load(ctx, rc, loader, b); err != nil {
					return err
				}
			}
		}

		if err := r.checkErrorLimit(rc); err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return canceled(cerr)
		}
		r.setState(StateExtracting)
		pulled = time.Now()
	}

	if cerr := ctx.Err(); cerr != nil {
		return canceled(cerr)
	}
	if b.len() > 0 {
		return r.load(ctx, rc, loader, b)
	}
	return nil
}

func (r *Runner) process(rc *RunContext, index int, rec models.Record, b *batch) {
	rc.Metrics.Extracted++

	out, ok := r.transform(rc, index, rec)
	if !ok {
		return
	}
	if out, ok = r.validate(rc, index, out); !ok {
		return
	}
	b.add(index, out)
}

func (r *Runner) extractFailed(rc *RunContext, err error) {
	rc.Metrics.ExtractErrors++

	entry := ErrorEntry{
		Stage:       StageExtract,
		RecordIndex: -1,
		Kind:        kind(err, errors.ErrorTypeExtraction),
		Detail:      err.Error(),
	}
	var ee *core.ExtractError
	if errors.As(err, &ee) {
		entry.Line = ee.Line
		entry.Raw = ee.Raw
	}
	rc.record(entry)
	rc.Logger.Debug("skipped malformed input", zap.Int("line", entry.Line), zap.Error(err))
}

func (r *Runner) transform(rc *RunContext, index int, rec models.Record) (models.Record, bool) {
	r.setState(StateTransforming)
	start := time.Now()
	res := r.chain.Apply(rec)
	rc.Metrics.addStage(StageTransform, time.Since(start))

	for _, w := range res.Warnings {
		rc.record(ErrorEntry{
			Stage:       StageTransform,
			RecordIndex: index,
			Kind:        kind(w.Err, errors.ErrorTypeTransform),
			Detail:      w.Step + ": " + w.Err.Error(),
		})
	}

	switch res.Outcome {
	case transform.Drop:
		rc.Metrics.FilteredOut++
		return rec, false
	case transform.Fail:
		rc.Metrics.TransformFailed++
		entry := entryFor(StageTransform, index, rec, res.Err)
		entry.Kind = kind(res.Err, errors.ErrorTypeTransform)
		entry.Detail = res.Step + ": " + res.Err.Error()
		rc.record(entry)
		rc.Logger.Debug("record failed transform",
			zap.Int("index", index), zap.String("step", res.Step), zap.Error(res.Err))
		return rec, false
	}

	rc.Metrics.Transformed++
	return res.Record, true
}

func (r *Runner) validate(rc *RunContext, index int, rec models.Record) (models.Record, bool) {
	r.setState(StateValidating)
	start := time.Now()
	out, verr := r.validator.Validate(index, rec)
	rc.Metrics.addStage(StageValidate, time.Since(start))

	if verr != nil {
		rc.Metrics.Invalid++
		entry := entryFor(StageValidate, index, rec, verr)
		entry.Kind = string(errors.ErrorTypeValidation)
		entry.Fields = verr.FieldNames()
		rc.record(entry)
		rc.Logger.Debug("record invalid",
			zap.Int("index", index), zap.String("model", r.validator.Model()), zap.Strings("fields", entry.Fields))
		return rec, false
	}

	rc.Metrics.Valid++
	return out, true
}

// load hands b to the loader and empties it. Its records end up either
// loaded or load failed.
func (r *Runner) load(ctx context.Context, rc *RunContext, loader core.Loader, b *batch) error {
	r.setState(StateLoading)
	rc.Metrics.Batches++
	n := b.len()

	ctx, span := observability.StartSpan(ctx, "pipeline.batch",
		attribute.Int("batch.number", rc.Metrics.Batches),
		attribute.Int("batch.size", n),
	)
	start := time.Now()
	res, err := loader.Load(ctx, b.records)
	rc.Metrics.addStage(StageLoad, time.Since(start))

	if err != nil && res.Failed() == 0 {
		res = core.BatchFailure(n, err)
	}
	failed := min(res.Failed(), n)
	rc.Metrics.Loaded += n - failed
	rc.Metrics.LoadFailed += failed
	if r.collector != nil {
		r.collector.ObserveBatch(n, failed == 0)
	}

	for _, f := range res.Failures {
		if len(f.Indexes) == 0 {
			continue
		}
		first := f.Indexes[0]
		entry := ErrorEntry{
			Stage:       StageLoad,
			RecordIndex: -1,
			Kind:        kind(f.Err, errors.ErrorTypeLoad),
			Detail:      fmt.Sprintf("batch %d: %d records not loaded: %v", rc.Metrics.Batches, len(f.Indexes), f.Err),
		}
		if first >= 0 && first < n {
			entry.RecordIndex = b.indexes[first]
		}
		rc.record(entry)
		if err == nil {
			err = f.Err
		}
	}

	span.SetAttribute("batch.failed", failed)
	b.reset()

	if failed == 0 {
		span.End(nil)
		rc.Logger.Debug("batch loaded", zap.Int("batch", rc.Metrics.Batches), zap.Int("records", n))
		return nil
	}

	if err == nil {
		err = errors.Newf(errors.ErrorTypeLoad, "%d records rejected", failed)
	}
	span.End(err)
	if !r.cfg.Options.ShouldStopOnLoadFailure() {
		rc.Logger.Warn("batch failed, continuing",
			zap.Int("batch", rc.Metrics.Batches), zap.Int("records", failed), zap.Error(err))
		return nil
	}
	return typed(err, errors.ErrorTypeLoad, "batch load failed")
}

func (r *Runner) checkErrorLimit(rc *RunContext) error {
	limit := r.cfg.Options.MaxErrors
	if limit <= 0 || rc.Report.Len() <= limit {
		return nil
	}
	return errors.Newf(errors.ErrorTypeInternal, "error limit exceeded: %d errors, max_errors is %d",
		rc.Report.Len(), limit).WithDetail("max_errors", limit)
}

func (r *Runner) finish(rc *RunContext, started time.Time, cause error) *Result {
	m := rc.Metrics

	// records of an unflushed batch when the run stopped early
	if pending := m.Pending(); pending > 0 {
		m.LoadFailed += pending
		rc.record(ErrorEntry{
			Stage:       StageLoad,
			RecordIndex: -1,
			Kind:        string(errors.ErrorTypeLoad),
			Detail:      fmt.Sprintf("%d records not loaded: run stopped", pending),
		})
	}

	finished := time.Now()
	m.Duration = finished.Sub(started)

	result := &Result{
		RunID:      rc.RunID,
		Pipeline:   rc.Pipeline,
		Status:     StatusCompleted,
		State:      StateCompleted,
		Metrics:    *m,
		Errors:     rc.Report.Entries(),
		Cause:      cause,
		StartedAt:  started,
		FinishedAt: finished,
	}

	fields := []zap.Field{
		zap.Int("extracted", m.Extracted),
		zap.Int("filtered_out", m.FilteredOut),
		zap.Int("transform_failed", m.TransformFailed),
		zap.Int("invalid", m.Invalid),
		zap.Int("loaded", m.Loaded),
		zap.Int("load_failed", m.LoadFailed),
		zap.Int("errors", m.ErrorCount),
		zap.Duration("duration", m.Duration),
	}
	if cause != nil {
		result.Status = StatusFailed
		result.State = StateFailed
		rc.Logger.Error("pipeline failed", append(fields, zap.Error(cause))...)
	} else {
		rc.Logger.Info("pipeline complete", fields...)
	}
	r.setState(result.State)

	r.publish(rc, result)
	return result
}

func (r *Runner) publish(rc *RunContext, result *Result) {
	c := r.collector
	if c == nil {
		return
	}
	m := rc.Metrics
	c.AddRecords(metrics.OutcomeExtracted, m.Extracted)
	c.AddRecords(metrics.OutcomeFiltered, m.FilteredOut)
	c.AddRecords(metrics.OutcomeTransformFailed, m.TransformFailed)
	c.AddRecords(metrics.OutcomeInvalid, m.Invalid)
	c.AddRecords(metrics.OutcomeLoaded, m.Loaded)
	c.AddRecords(metrics.OutcomeLoadFailed, m.LoadFailed)
	for _, e := range result.Errors {
		if e.Stage == StageExtract {
			c.IncExtractError()
		}
		c.IncError(e.Stage)
	}
	for stage, d := range m.Stages {
		c.ObserveStage(stage, d)
	}
	c.ObserveRun(result.Status, m.Duration, result.FinishedAt)
}

// batch is the set of valid records waiting for the loader, with their
// positions in extraction order.
type batch struct {
	records []models.Record
	indexes []int
}

func (b *batch) add(index int, rec models.Record) {
	b.records = append(b.records, rec)
	b.indexes = append(b.indexes, index)
}

func (b *batch) len() int { return len(b.records) }

func (b *batch) reset() {
	b.records = make([]models.Record, 0, cap(b.records))
	b.indexes = b.indexes[:0]
}

func canceled(err error) error {
	return errors.Wrap(err, errors.ErrorTypeCanceled, "run canceled")
}

// typed returns err unchanged when it already carries an error type.
func typed(err error, t errors.ErrorType, msg string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.Wrap(err, t, msg)
}

// kind names the error type of err, falling back to t for untyped errors.
func kind(err error, t errors.ErrorType) string {
	var e *errors.Error
	if errors.As(err, &e) {
		return string(e.Type)
	}
	return string(t)
}
