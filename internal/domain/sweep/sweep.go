package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fivcare/clinic/internal/domain/treatment"
	"github.com/fivcare/clinic/internal/platform/notification"
)

const (
	// WarnAfterDays is the inactivity age at which a treatment enters the
	// warning band.
	WarnAfterDays = 50
	// CloseAfterDays is the inactivity age at which a treatment is closed
	// automatically.
	CloseAfterDays = 60
)

// Result summarizes one sweep pass over the active treatments.
type Result struct {
	Scanned int `json:"scanned"`
	Warned  int `json:"warned"`
	Closed  int `json:"closed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// TreatmentLifecycle is the slice of the treatment service the sweep drives.
type TreatmentLifecycle interface {
	ListActive(ctx context.Context) ([]*treatment.Treatment, error)
	CloseForInactivity(ctx context.Context, id uuid.UUID, daysInactive int) (*treatment.Treatment, error)
	Contacts(ctx context.Context, id uuid.UUID) (*treatment.Contacts, error)
}

// ActivitySource resolves the last clinical activity of a treatment.
type ActivitySource interface {
	LastActivity(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
}

// Sweeper runs the daily inactivity pass: treatments idle for 50 to 59 whole
// days get a warning, treatments idle for 60 or more get closed.
type Sweeper struct {
	treatments TreatmentLifecycle
	activity   ActivitySource
	notifier   *notification.Dispatcher
	logger     zerolog.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

func NewSweeper(treatments TreatmentLifecycle, activity ActivitySource, notifier *notification.Dispatcher, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		treatments: treatments,
		activity:   activity,
		notifier:   notifier,
		logger:     logger.With().Str("component", "sweep").Logger(),
		Now:        time.Now,
	}
}

// Run performs one sweep over every active treatment. Treatments are handled
// independently: a failure or panic on one is counted and the pass moves on.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	var res Result

	active, err := s.treatments.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list active treatments: %w", err)
	}

	now := s.Now().UTC()
	s.logger.Info().Int("candidates", len(active)).Msg("inactivity sweep started")

	for _, t := range active {
		res.Scanned++
		s.sweepOne(ctx, now, t, &res)
	}

	s.logger.Info().
		Int("scanned", res.Scanned).
		Int("warned", res.Warned).
		Int("closed", res.Closed).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("inactivity sweep finished")
	return res, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, now time.Time, t *treatment.Treatment, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Failed++
			s.logger.Error().
				Str("treatment_id", t.ID.String()).
				Interface("panic", r).
				Msg("sweep panicked on treatment")
		}
	}()

	last, err := s.activity.LastActivity(ctx, t.ID)
	if err != nil {
		res.Failed++
		s.logger.Error().Err(err).Str("treatment_id", t.ID.String()).Msg("activity lookup failed")
		return
	}
	if last == nil {
		res.Skipped++
		s.logger.Warn().Str("treatment_id", t.ID.String()).Msg("no activity timestamp, skipping")
		return
	}

	days := int(now.Sub(*last).Hours() / 24)
	switch {
	case days >= CloseAfterDays:
		if err := s.closeTreatment(ctx, t, days); err != nil {
			res.Failed++
			return
		}
		res.Closed++
	case days >= WarnAfterDays:
		s.warn(ctx, t, days)
		res.Warned++
	}
}

// closeTreatment persists the closure first; notifications come after and are
// best effort, so a dead mail relay never leaves a stale treatment open.
func (s *Sweeper) closeTreatment(ctx context.Context, t *treatment.Treatment, days int) error {
	if _, err := s.treatments.CloseForInactivity(ctx, t.ID, days); err != nil {
		s.logger.Error().Err(err).
			Str("treatment_id", t.ID.String()).
			Int("inactive_days", days).
			Msg("automatic closure failed")
		return err
	}

	contacts, err := s.treatments.Contacts(ctx, t.ID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("treatment_id", t.ID.String()).
			Msg("contact lookup failed, skipping closure notifications")
		return nil
	}

	subject := "Treatment closed due to inactivity"
	if contacts.PatientEmail != "" {
		body := fmt.Sprintf("Hello %s,\n\nYour treatment was automatically closed after %d days without activity. Contact the clinic if you wish to resume.",
			contacts.PatientName, days)
		s.notifier.Email(ctx, []string{contacts.PatientEmail}, subject, body)
	}
	if contacts.DoctorEmail != "" {
		body := fmt.Sprintf("Treatment %s of patient %s was automatically closed after %d days without activity.",
			t.ID, contacts.PatientName, days)
		s.notifier.Email(ctx, []string{contacts.DoctorEmail}, subject, body)
	}
	s.notifier.Alert(ctx, fmt.Sprintf("Closed treatment %s after %d inactive days", t.ID, days))
	return nil
}

func (s *Sweeper) warn(ctx context.Context, t *treatment.Treatment, days int) {
	remaining := CloseAfterDays - days
	s.logger.Info().
		Str("treatment_id", t.ID.String()).
		Int("inactive_days", days).
		Int("days_remaining", remaining).
		Msg("treatment in inactivity warning band")

	contacts, err := s.treatments.Contacts(ctx, t.ID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("treatment_id", t.ID.String()).
			Msg("contact lookup failed, skipping warning notification")
		return
	}

	subject := "Treatment approaching automatic closure"
	if contacts.PatientEmail != "" {
		body := fmt.Sprintf("Hello %s,\n\nYour treatment has had no activity for %d days and will be closed automatically in %d day(s). Contact the clinic to keep it open.",
			contacts.PatientName, days, remaining)
		s.notifier.Email(ctx, []string{contacts.PatientEmail}, subject, body)
	}
	if contacts.DoctorEmail != "" {
		body := fmt.Sprintf("Treatment %s of patient %s has had no activity for %d days and will be closed automatically in %d day(s).",
			t.ID, contacts.PatientName, days, remaining)
		s.notifier.Email(ctx, []string{contacts.DoctorEmail}, subject, body)
	}
	s.notifier.Alert(ctx, fmt.Sprintf("Treatment %s closes in %d day(s) without new activity", t.ID, remaining))
}
