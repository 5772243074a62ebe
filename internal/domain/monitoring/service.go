package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fivcare/clinic/internal/domain/treatment"
	"github.com/fivcare/clinic/internal/platform/appointments"
	"github.com/fivcare/clinic/internal/platform/notification"
)

var (
	// ErrMissingStimulationStart is returned when plan generation is
	// requested for a treatment without a stimulation start date.
	ErrMissingStimulationStart = errors.New("treatment has no stimulation start date")
	// ErrInvalidPlanRow is returned when a protocol row is missing its
	// planned day.
	ErrInvalidPlanRow = errors.New("plan row needs a planned day")
	// ErrPlanNotFound is returned when no plan row matches the id.
	ErrPlanNotFound = errors.New("monitoring plan not found")
)

// windowDays is the tolerance applied either side of the estimated date.
const windowDays = 1

// TreatmentDirectory is the slice of the treatment service the scheduler
// needs: resolving a treatment and its notification recipients.
type TreatmentDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*treatment.Treatment, error)
	Contacts(ctx context.Context, id uuid.UUID) (*treatment.Contacts, error)
}

// Service generates and maintains the monitoring visit plan of a treatment.
type Service struct {
	repo       Repository
	treatments TreatmentDirectory
	booking    appointments.Service
	notifier   *notification.Dispatcher
	logger     zerolog.Logger
}

func NewService(repo Repository, treatments TreatmentDirectory, booking appointments.Service, notifier *notification.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		treatments: treatments,
		booking:    booking,
		notifier:   notifier,
		logger:     logger.With().Str("component", "monitoring").Logger(),
	}
}

// GeneratePlan replaces the treatment's monitoring plan with one derived from
// the given protocol rows. Every row is anchored to the stimulation start
// date: estimated = start + plannedDay, with a window of estimated ± 1 day.
// Rows carrying an external appointment id start out reserved; overtime rows
// get a slot booked through the appointments service before the plan is
// written. An empty row set clears the plan.
func (s *Service) GeneratePlan(ctx context.Context, treatmentID uuid.UUID, rows []PlanRow) ([]*Plan, error) {
	tr, err := s.treatments.Get(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	if tr.Terminal() {
		return nil, treatment.ErrTreatmentNotActive
	}
	if tr.StartDate == nil {
		return nil, ErrMissingStimulationStart
	}
	// Negative planned days are fine: they describe baseline visits before
	// stimulation starts.
	for _, row := range rows {
		if row.PlannedDay == nil {
			return nil, fmt.Errorf("%w: sequence %d", ErrInvalidPlanRow, row.Sequence)
		}
	}

	start := tr.StartDate.Truncate(24 * time.Hour)
	plans := make([]*Plan, 0, len(rows))
	for _, row := range rows {
		est := start.AddDate(0, 0, *row.PlannedDay)
		p := &Plan{
			ID:            uuid.New(),
			TreatmentID:   treatmentID,
			Sequence:      row.Sequence,
			PlannedDay:    *row.PlannedDay,
			EstimatedDate: est,
			MinDate:       est.AddDate(0, 0, -windowDays),
			MaxDate:       est.AddDate(0, 0, windowDays),
			Status:        StatusPlanned,
			AppointmentID: row.AppointmentID,
		}
		if row.AppointmentID != nil {
			p.Status = StatusReserved
		} else if row.IsOvertime {
			apptID, err := s.booking.CreateOvertimeAppointment(ctx, appointments.OvertimeRequest{
				TreatmentID: treatmentID,
				Sequence:    row.Sequence,
				MinDate:     p.MinDate,
				MaxDate:     p.MaxDate,
			})
			if err != nil {
				return nil, fmt.Errorf("book overtime slot for sequence %d: %w", row.Sequence, err)
			}
			p.AppointmentID = &apptID
			p.Status = StatusReserved
		}
		plans = append(plans, p)
	}

	if err := s.repo.Replace(ctx, treatmentID, plans); err != nil {
		return nil, err
	}

	for _, p := range plans {
		if p.AppointmentID == nil {
			continue
		}
		if err := s.booking.AssignExternalAppointment(ctx, p.ID, *p.AppointmentID); err != nil {
			s.logger.Warn().Err(err).
				Str("plan_id", p.ID.String()).
				Str("appointment_id", *p.AppointmentID).
				Msg("appointment link failed")
		}
	}

	if len(plans) > 0 {
		s.notifyReady(ctx, treatmentID, len(plans))
	}

	s.logger.Info().
		Str("treatment_id", treatmentID.String()).
		Int("visits", len(plans)).
		Msg("monitoring plan generated")
	return plans, nil
}

// Plan returns the treatment's current monitoring plan ordered by sequence.
func (s *Service) Plan(ctx context.Context, treatmentID uuid.UUID) ([]*Plan, error) {
	if _, err := s.treatments.Get(ctx, treatmentID); err != nil {
		return nil, err
	}
	return s.repo.ListByTreatment(ctx, treatmentID)
}

// MarkVisit moves a single plan row to a new booking status.
func (s *Service) MarkVisit(ctx context.Context, planID uuid.UUID, status PlanStatus) error {
	switch status {
	case StatusPlanned, StatusReserved, StatusCompleted, StatusCancelled:
	default:
		return fmt.Errorf("unknown plan status %q", status)
	}
	return s.repo.UpdateStatus(ctx, planID, status)
}

// notifyReady sends the single schedule-ready email, best effort.
func (s *Service) notifyReady(ctx context.Context, treatmentID uuid.UUID, visits int) {
	contacts, err := s.treatments.Contacts(ctx, treatmentID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("treatment_id", treatmentID.String()).
			Msg("contact lookup failed, skipping schedule notification")
		return
	}

	to := []string{}
	if contacts.PatientEmail != "" {
		to = append(to, contacts.PatientEmail)
	}
	if contacts.DoctorEmail != "" {
		to = append(to, contacts.DoctorEmail)
	}
	subject := "Your monitoring schedule is ready"
	body := fmt.Sprintf("Hello %s,\n\nYour monitoring plan with %d visit(s) has been updated. Please review the dates in the patient portal.",
		contacts.PatientName, visits)
	s.notifier.Email(ctx, to, subject, body)
}
