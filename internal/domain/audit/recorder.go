package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Recorder writes the field-level audit trail. Every mutating operation in
// the clinical domain goes through one of its three modes.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// changed reports strict inequality, counting null-vs-value as a change.
func changed(oldV, newV *string) bool {
	if (oldV == nil) != (newV == nil) {
		return true
	}
	if oldV == nil {
		return false
	}
	return *oldV != *newV
}

// LogFieldChange writes one entry for a single field change. Equal old and
// new values are a silent no-op.
func (r *Recorder) LogFieldChange(ctx context.Context, table string, recordID uuid.UUID, column string, oldV, newV *string, actor *uuid.UUID) error {
	if !changed(oldV, newV) {
		return nil
	}
	e := &Entry{
		TableName:  table,
		RecordID:   recordID,
		FieldName:  column,
		OldValue:   oldV,
		NewValue:   newV,
		ActingUser: actor,
	}
	if err := r.repo.Insert(ctx, e); err != nil {
		return fmt.Errorf("audit %s.%s: %w", table, column, err)
	}
	return nil
}

// LogAllNonNullFields seeds the trail at entity creation: one entry per
// declared field whose current value is non-null, with a null old value.
func (r *Recorder) LogAllNonNullFields(ctx context.Context, table string, recordID uuid.UUID, fields FieldMap, values map[string]*string, actor *uuid.UUID) error {
	for attr, column := range fields {
		v, ok := values[attr]
		if !ok || v == nil {
			continue
		}
		if err := r.LogFieldChange(ctx, table, recordID, column, nil, v, actor); err != nil {
			return err
		}
	}
	return nil
}

// LogMultipleFieldChanges diffs an entity snapshot against a partial-update
// payload, writing one entry per provided field that actually changed.
// Fields absent from the payload are skipped; a provided null is compared
// like any other value.
func (r *Recorder) LogMultipleFieldChanges(ctx context.Context, table string, recordID uuid.UUID, fields FieldMap, current map[string]*string, patch map[string]Optional, actor *uuid.UUID) error {
	for attr, column := range fields {
		incoming, ok := patch[attr]
		if !ok || !incoming.Set {
			continue
		}
		if err := r.LogFieldChange(ctx, table, recordID, column, current[attr], incoming.Value, actor); err != nil {
			return err
		}
	}
	return nil
}

// Trail returns the recorded entries for one record, newest first.
func (r *Recorder) Trail(ctx context.Context, table string, recordID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return r.repo.ListByRecord(ctx, table, recordID, limit, offset)
}
