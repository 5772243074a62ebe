package monitoring

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus tracks where a planned visit sits in its booking lifecycle.
type PlanStatus string

const (
	StatusPlanned   PlanStatus = "PLANNED"
	StatusReserved  PlanStatus = "RESERVED"
	StatusCompleted PlanStatus = "COMPLETED"
	StatusCancelled PlanStatus = "CANCELLED"
)

// Plan is one expected monitoring visit, anchored to the treatment's
// stimulation start date with a one-day tolerance either side.
type Plan struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TreatmentID   uuid.UUID  `db:"treatment_id" json:"treatment_id"`
	Sequence      int        `db:"sequence" json:"sequence"`
	PlannedDay    int        `db:"planned_day" json:"planned_day"`
	EstimatedDate time.Time  `db:"estimated_date" json:"estimated_date"`
	MinDate       time.Time  `db:"min_date" json:"min_date"`
	MaxDate       time.Time  `db:"max_date" json:"max_date"`
	Status        PlanStatus `db:"status" json:"status"`
	AppointmentID *string    `db:"appointment_id" json:"appointment_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// PlanRow is one row of the protocol definition a plan is generated from.
type PlanRow struct {
	Sequence      int     `json:"sequence"`
	PlannedDay    *int    `json:"planned_day"`
	AppointmentID *string `json:"appointment_id"`
	IsOvertime    bool    `json:"is_overtime"`
}
