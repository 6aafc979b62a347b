package pipeline

import (
	"github.com/ajitpratap0/pipeflow/pkg/errors"
	"github.com/ajitpratap0/pipeflow/pkg/json"
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// ErrorEntry is one recovered failure.
type ErrorEntry struct {
	Stage string `json:"stage"`
	// RecordIndex is the record's position in extraction order, or -1 when
	// no record was produced (extract errors)
	RecordIndex int `json:"record_index"`
	// Line is the source line of an extract error
	Line   int      `json:"line,omitempty"`
	Raw    string   `json:"raw,omitempty"`
	Kind   string   `json:"kind"`
	Detail string   `json:"detail"`
	Fields []string `json:"fields,omitempty"`
}

// ErrorReport is the append-only list of failures recovered during a run.
type ErrorReport struct {
	entries []ErrorEntry
}

// Add appends e.
func (r *ErrorReport) Add(e ErrorEntry) {
	r.entries = append(r.entries, e)
}

// Len returns the number of entries.
func (r *ErrorReport) Len() int { return len(r.entries) }

// Entries returns a copy of the entries in insertion order.
func (r *ErrorReport) Entries() []ErrorEntry {
	out := make([]ErrorEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ByStage returns the entries recorded for stage.
func (r *ErrorReport) ByStage(stage string) []ErrorEntry {
	var out []ErrorEntry
	for _, e := range r.entries {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

func entryFor(stage string, index int, rec models.Record, err error) ErrorEntry {
	return ErrorEntry{
		Stage:       stage,
		RecordIndex: index,
		Raw:         rawRecord(rec),
		Kind:        string(errors.GetType(err)),
		Detail:      err.Error(),
	}
}

func rawRecord(rec models.Record) string {
	if rec.Len() == 0 {
		return ""
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return ""
	}
	return string(b)
}
