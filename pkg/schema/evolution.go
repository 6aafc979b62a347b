package schema

import (
	"github.com/ajitpratap0/pipeflow/pkg/models"
)

// ChangeType represents the type of schema change
type ChangeType string

const (
	ChangeTypeAddField    ChangeType = "ADD_FIELD"
	ChangeTypeRemoveField ChangeType = "REMOVE_FIELD"
	ChangeTypeModifyType  ChangeType = "MODIFY_TYPE"
)

// SchemaChange represents a single difference between two schemas.
type SchemaChange struct {
	Type     ChangeType    `json:"type"`
	Field    string        `json:"field"`
	OldField *models.Field `json:"old_field,omitempty"`
	NewField *models.Field `json:"new_field,omitempty"`
}

// DetectChanges lists how next differs from current: fields only in next
// (added), fields only in current (removed) and fields whose type changed.
// Changes follow the field order of next, then of current.
func DetectChanges(current, next models.Schema) []SchemaChange {
	var changes []SchemaChange

	for i := range next.Fields {
		nf := &next.Fields[i]
		idx := current.Index(nf.Name)
		if idx < 0 {
			changes = append(changes, SchemaChange{Type: ChangeTypeAddField, Field: nf.Name, NewField: nf})
			continue
		}
		cf := &current.Fields[idx]
		if cf.Type != nf.Type {
			changes = append(changes, SchemaChange{Type: ChangeTypeModifyType, Field: nf.Name, OldField: cf, NewField: nf})
		}
	}

	for i := range current.Fields {
		cf := &current.Fields[i]
		if next.Index(cf.Name) < 0 {
			changes = append(changes, SchemaChange{Type: ChangeTypeRemoveField, Field: cf.Name, OldField: cf})
		}
	}

	return changes
}

// ExtraFields returns the fields of rec that the schema does not know, in
// record order.
func ExtraFields(s models.Schema, rec models.Record) []string {
	var extra []string
	for _, k := range rec.Keys() {
		if s.Index(k) < 0 {
			extra = append(extra, k)
		}
	}
	return extra
}
