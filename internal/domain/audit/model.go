package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable record of a single field's before/after value on a
// clinical record. Entries reference their subject by (table, record id) so
// any entity can be audited.
type Entry struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TableName  string     `db:"table_name" json:"table_name"`
	RecordID   uuid.UUID  `db:"record_id" json:"record_id"`
	FieldName  string     `db:"field_name" json:"field_name"`
	OldValue   *string    `db:"old_value" json:"old_value,omitempty"`
	NewValue   *string    `db:"new_value" json:"new_value,omitempty"`
	ActingUser *uuid.UUID `db:"acting_user" json:"acting_user,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// FieldMap declares, per entity, the mapping from logical attribute name to
// the audited column name. Each entity owns exactly one FieldMap so call
// sites never hand-maintain their own copies.
type FieldMap map[string]string

// Optional is a partial-update value. Set reports whether the field appeared
// in the payload at all; a set field with a nil Value is an explicit null.
type Optional struct {
	Set   bool
	Value *string
}

// Some returns an Optional holding v.
func Some(v string) Optional {
	return Optional{Set: true, Value: &v}
}

// Null returns an Optional explicitly set to null.
func Null() Optional {
	return Optional{Set: true}
}

// UnmarshalJSON marks the field as provided; JSON null keeps Value nil.
func (o *Optional) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON renders the held value (or null).
func (o Optional) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
