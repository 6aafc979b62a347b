package transform

import "github.com/ajitpratap0/pipeflow/pkg/models"

// Select keeps only the listed fields, in the listed order.
type Select struct{ columns []string }

// NewSelect creates a select step.
func NewSelect(columns []string) *Select { return &Select{columns: columns} }

func (s *Select) Name() string { return "select" }

func (s *Select) Apply(rec models.Record) (models.Record, Outcome, error) {
	return rec.Select(s.columns...), Keep, nil
}

// DropFields removes the listed fields.
type DropFields struct{ columns []string }

// NewDrop creates a step removing columns.
func NewDrop(columns []string) *DropFields { return &DropFields{columns: columns} }

func (d *DropFields) Name() string { return "drop" }

func (d *DropFields) Apply(rec models.Record) (models.Record, Outcome, error) {
	return rec.Delete(d.columns...), Keep, nil
}
