package transform

import (
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/expr"
	"github.com/ajitpratap0/pipeflow/pkg/models"
	"go.uber.org/zap"
)

// Filter drops records whose condition is false. A condition that cannot be
// evaluated also drops the record.
type Filter struct {
	prog   *expr.Program
	logger *zap.Logger
}

// NewFilter compiles condition into a filter step.
func NewFilter(condition string, logger *zap.Logger) (*Filter, error) {
	prog, err := expr.Compile(condition)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExpression, "invalid filter condition").
			WithDetail("condition", condition)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{prog: prog, logger: logger}, nil
}

func (f *Filter) Name() string { return "filter" }

func (f *Filter) Apply(rec models.Record) (models.Record, Outcome, error) {
	ok, err := f.prog.EvalBool(rec)
	if err != nil {
		f.logger.Debug("filter condition failed, dropping record",
			zap.String("condition", f.prog.String()),
			zap.Error(err))
		return rec, Drop, errors.Wrap(err, errors.ErrorTypeExpression, "filter condition failed")
	}
	if !ok {
		return rec, Drop, nil
	}
	return rec, Keep, nil
}
