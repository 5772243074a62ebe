package treatment

import (
	"time"

	"github.com/google/uuid"

	"github.com/fivcare/clinic/internal/domain/audit"
)

// Status is the lifecycle state of a treatment. Closed and completed are
// terminal: the inactivity sweep never re-evaluates them.
type Status string

const (
	StatusActive    Status = "vigente"
	StatusClosed    Status = "closed"
	StatusCompleted Status = "completed"
)

// InactivityClosureReason is the fixed reason recorded on automatic closure.
const InactivityClosureReason = "Cierre automático por inactividad (60 días)"

// Treatment is a patient's fertility-treatment episode, the root entity this
// service schedules and audits.
type Treatment struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	MedicalHistoryID uuid.UUID  `db:"medical_history_id" json:"medical_history_id"`
	DoctorID         *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	Status           Status     `db:"status" json:"status"`
	StartDate        *time.Time `db:"start_date" json:"start_date,omitempty"` // stimulation start
	ClosureDate      *time.Time `db:"closure_date" json:"closure_date,omitempty"`
	ClosureReason    *string    `db:"closure_reason" json:"closure_reason,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the treatment has left the active state.
func (t *Treatment) Terminal() bool {
	return t.Status == StatusClosed || t.Status == StatusCompleted
}

// Contacts carries the notification recipients attached to a treatment.
type Contacts struct {
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	DoctorEmail  string `json:"doctor_email"`
}

// AuditTable is the logical table name treatments are audited under.
const AuditTable = "treatment"

// AuditFields is the single source of truth mapping treatment attributes to
// audited column names.
var AuditFields = audit.FieldMap{
	"status":        "status",
	"startDate":     "start_date",
	"closureDate":   "closure_date",
	"closureReason": "closure_reason",
	"doctorID":      "doctor_id",
	"notes":         "notes",
}

const dateLayout = "2006-01-02"

func strp(s string) *string { return &s }

func dateValue(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return strp(t.Format(dateLayout))
}

func idValue(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	return strp(id.String())
}

// AuditValues renders the audited attributes as nullable text, keyed by the
// logical attribute names declared in AuditFields.
func (t *Treatment) AuditValues() map[string]*string {
	return map[string]*string{
		"status":        strp(string(t.Status)),
		"startDate":     dateValue(t.StartDate),
		"closureDate":   dateValue(t.ClosureDate),
		"closureReason": t.ClosureReason,
		"doctorID":      idValue(t.DoctorID),
		"notes":         t.Notes,
	}
}

// Patch is a typed partial update for the manually editable treatment fields.
// Every field is explicit so the audit differ can tell an omitted field from
// one set to null.
type Patch struct {
	StartDate audit.Optional `json:"start_date"`
	DoctorID  audit.Optional `json:"doctor_id"`
	Notes     audit.Optional `json:"notes"`
}

// AuditValues renders the provided fields keyed by logical attribute name.
func (p Patch) AuditValues() map[string]audit.Optional {
	out := make(map[string]audit.Optional, 3)
	if p.StartDate.Set {
		out["startDate"] = p.StartDate
	}
	if p.DoctorID.Set {
		out["doctorID"] = p.DoctorID
	}
	if p.Notes.Set {
		out["notes"] = p.Notes
	}
	return out
}
