package treatment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fivcare/clinic/internal/domain/audit"
)

var (
	// ErrTreatmentNotFound is returned when no treatment matches the id.
	ErrTreatmentNotFound = errors.New("treatment not found")
	// ErrTreatmentNotActive is returned by state transitions and plan
	// generation on treatments that already reached a terminal state.
	ErrTreatmentNotActive = errors.New("treatment is not active")
	// ErrMissingMedicalHistory is returned when a treatment is created
	// without a medical history link.
	ErrMissingMedicalHistory = errors.New("medical history id is required")
	// ErrInvalidClosureReason is returned on manual closure with an empty
	// reason.
	ErrInvalidClosureReason = errors.New("closure reason is required")
	// ErrInvalidPatch is returned when a partial update carries a value
	// that cannot be parsed.
	ErrInvalidPatch = errors.New("invalid patch value")
)

// Service owns treatment lifecycle transitions and keeps the audit trail in
// step with them.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
	logger   zerolog.Logger
}

func NewService(repo Repository, recorder *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		recorder: recorder,
		logger:   logger.With().Str("component", "treatment").Logger(),
	}
}

// Create opens a new active treatment and seeds its audit trail with every
// non-null field, all with a null previous value.
func (s *Service) Create(ctx context.Context, t *Treatment, actor *uuid.UUID) error {
	if t.MedicalHistoryID == uuid.Nil {
		return ErrMissingMedicalHistory
	}
	t.Status = StatusActive
	t.ClosureDate = nil
	t.ClosureReason = nil

	if err := s.repo.Create(ctx, t); err != nil {
		return err
	}
	if err := s.recorder.LogAllNonNullFields(ctx, AuditTable, t.ID, AuditFields, t.AuditValues(), actor); err != nil {
		s.logger.Error().Err(err).Str("treatment_id", t.ID.String()).Msg("audit seed failed")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Treatment, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListActive(ctx context.Context) ([]*Treatment, error) {
	return s.repo.ListActive(ctx)
}

// Update applies a partial edit to the mutable treatment fields and records
// one audit entry per field whose value actually changed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch, actor *uuid.UUID) (*Treatment, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, ErrTreatmentNotActive
	}

	before := t.AuditValues()

	if patch.StartDate.Set {
		if patch.StartDate.Value == nil {
			t.StartDate = nil
		} else {
			d, err := time.Parse(dateLayout, *patch.StartDate.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: start_date %q", ErrInvalidPatch, *patch.StartDate.Value)
			}
			t.StartDate = &d
		}
	}
	if patch.DoctorID.Set {
		if patch.DoctorID.Value == nil {
			t.DoctorID = nil
		} else {
			id, err := uuid.Parse(*patch.DoctorID.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: doctor_id %q", ErrInvalidPatch, *patch.DoctorID.Value)
			}
			t.DoctorID = &id
		}
	}
	if patch.Notes.Set {
		t.Notes = patch.Notes.Value
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := s.recorder.LogMultipleFieldChanges(ctx, AuditTable, t.ID, AuditFields, before, patch.AuditValues(), actor); err != nil {
		s.logger.Error().Err(err).Str("treatment_id", t.ID.String()).Msg("audit diff failed")
	}
	return t, nil
}

// Close terminates an active treatment with a caller-supplied reason.
func (s *Service) Close(ctx context.Context, id uuid.UUID, reason string, actor *uuid.UUID) (*Treatment, error) {
	if reason == "" {
		return nil, ErrInvalidClosureReason
	}
	return s.transition(ctx, id, StatusClosed, &reason, actor)
}

// Complete marks an active treatment as successfully finished.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*Treatment, error) {
	return s.transition(ctx, id, StatusCompleted, nil, actor)
}

// CloseForInactivity closes an active treatment from the daily sweep using
// the fixed automatic-closure reason. No acting user is recorded. The
// persisted closure is committed before any audit entry is written; an audit
// failure is logged, never propagated, so a closed treatment is never
// reported as still active.
func (s *Service) CloseForInactivity(ctx context.Context, id uuid.UUID, daysInactive int) (*Treatment, error) {
	reason := InactivityClosureReason
	t, err := s.transition(ctx, id, StatusClosed, &reason, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("treatment_id", id.String()).
		Int("inactive_days", daysInactive).
		Msg("treatment closed for inactivity")
	return t, nil
}

// ReassignDoctor moves an active treatment to another doctor.
func (s *Service) ReassignDoctor(ctx context.Context, id uuid.UUID, doctorID uuid.UUID, actor *uuid.UUID) (*Treatment, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, ErrTreatmentNotActive
	}

	oldDoctor := idValue(t.DoctorID)
	t.DoctorID = &doctorID
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := s.recorder.LogFieldChange(ctx, AuditTable, t.ID, AuditFields["doctorID"], oldDoctor, idValue(t.DoctorID), actor); err != nil {
		s.logger.Error().Err(err).Str("treatment_id", t.ID.String()).Msg("audit write failed")
	}
	return t, nil
}

// Contacts exposes the notification recipients for a treatment.
func (s *Service) Contacts(ctx context.Context, id uuid.UUID) (*Contacts, error) {
	return s.repo.Contacts(ctx, id)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason *string, actor *uuid.UUID) (*Treatment, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, ErrTreatmentNotActive
	}

	before := t.AuditValues()

	// closure date and reason are set iff the treatment is closed;
	// completion leaves both nil
	t.Status = to
	if to == StatusClosed {
		now := time.Now().UTC()
		t.ClosureDate = &now
		t.ClosureReason = reason
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	after := t.AuditValues()
	for _, attr := range []string{"status", "closureDate", "closureReason"} {
		if err := s.recorder.LogFieldChange(ctx, AuditTable, t.ID, AuditFields[attr], before[attr], after[attr], actor); err != nil {
			s.logger.Error().Err(err).
				Str("treatment_id", t.ID.String()).
				Str("field", attr).
				Msg("audit write failed")
		}
	}

	s.logger.Info().
		Str("treatment_id", t.ID.String()).
		Str("status", string(to)).
		Msg("treatment state changed")
	return t, nil
}
