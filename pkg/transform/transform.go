// Package transform implements the transform chain: an ordered list of steps
// that each map a record to a replacement record or drop it.
//
// Steps run left to right. A drop from any step short-circuits the rest of the
// chain for that record; so does a failure. Steps never mutate their input.
package transform

import (
	"fmt"

	"github.com/ajitpratap0/pipeflow/pkg/config"
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"go.uber.org/zap"
)

// Outcome is what a step decided for a record.
type Outcome int

const (
	// Keep passes the record to the next step. A non-nil error alongside Keep
	// is a warning: the record continues.
	Keep Outcome = iota
	// Drop removes the record from the run. A non-nil error alongside Drop
	// explains why (for example a filter that failed to evaluate).
	Drop
	// Fail marks the record as failed at the transform stage.
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Keep:
		return "keep"
	case Drop:
		return "drop"
	default:
		return "fail"
	}
}

// Step is one transform.
type Step interface {
	// Name identifies the step in reports, e.g. "cast" or "filter".
	Name() string
	Apply(rec models.Record) (models.Record, Outcome, error)
}

// Resetter is implemented by steps that keep state across records.
type Resetter interface {
	Reset()
}

// Warning is a non-terminal problem raised by a step.
type Warning struct {
	Step string
	Err  error
}

// Result is the chain's verdict for one record.
type Result struct {
	Record  models.Record
	Outcome Outcome
	// Step names the step that dropped or failed the record
	Step string
	// Err is the failure cause for Fail, or the drop reason when there is one
	Err      error
	Warnings []Warning
}

// Chain runs steps in order.
type Chain struct {
	steps  []Step
	logger *zap.Logger
}

// NewChain builds a chain from its configuration. Each configured type maps to
// exactly one step kind.
func NewChain(cfgs []config.TransformConfig, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "transform"))

	steps := make([]Step, 0, len(cfgs))
	for i, cfg := range cfgs {
		step, err := newStep(cfg, logger)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "transforms[%d] (%s)", i, cfg.Type)
		}
		steps = append(steps, step)
	}
	return &Chain{steps: steps, logger: logger}, nil
}

// New builds a chain from already constructed steps.
func New(steps ...Step) *Chain {
	return &Chain{steps: steps, logger: zap.NewNop()}
}

func newStep(cfg config.TransformConfig, logger *zap.Logger) (Step, error) {
	switch cfg.Type {
	case config.TransformRename:
		return NewRename(cfg.Mapping), nil
	case config.TransformCast:
		return NewCast(cfg.Columns)
	case config.TransformFilter:
		return NewFilter(cfg.Condition, logger)
	case config.TransformDerive:
		if cfg.Field != "" {
			return NewDeriveField(cfg.Field, cfg.Expression)
		}
		return NewDerive(cfg.Expression)
	case config.TransformDeduplicate:
		return NewDeduplicate(cfg.Key)
	case config.TransformSelect:
		return NewSelect(cfg.Columns.Names()), nil
	case config.TransformDrop:
		return NewDrop(cfg.Columns.Names()), nil
	}
	return nil, fmt.Errorf("unknown transform type %q", cfg.Type)
}

// Apply runs rec through every step.
func (c *Chain) Apply(rec models.Record) Result {
	var warnings []Warning
	for _, step := range c.steps {
		out, outcome, err := step.Apply(rec)
		switch outcome {
		case Keep:
			if err != nil {
				warnings = append(warnings, Warning{Step: step.Name(), Err: err})
			}
			rec = out
		case Drop:
			return Result{Record: rec, Outcome: Drop, Step: step.Name(), Err: err, Warnings: warnings}
		default:
			if err == nil {
				err = errors.New(errors.ErrorTypeTransform, "step failed")
			}
			return Result{Record: rec, Outcome: Fail, Step: step.Name(), Err: err, Warnings: warnings}
		}
	}
	return Result{Record: rec, Outcome: Keep, Warnings: warnings}
}

// Reset clears the state of stateful steps so the chain can serve a new run.
func (c *Chain) Reset() {
	for _, s := range c.steps {
		if r, ok := s.(Resetter); ok {
			r.Reset()
		}
	}
}

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.steps) }

// Names returns the step names in order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Name()
	}
	return out
}
