package transform

import "github.com/ajitpratap0/pipeflow/pkg/models"

// Rename renames fields per mapping. Unmapped fields pass through untouched.
type Rename struct {
	mapping map[string]string
}

// NewRename creates a rename step.
func NewRename(mapping map[string]string) *Rename {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return &Rename{mapping: m}
}

func (r *Rename) Name() string { return "rename" }

func (r *Rename) Apply(rec models.Record) (models.Record, Outcome, error) {
	return rec.Rename(r.mapping), Keep, nil
}
