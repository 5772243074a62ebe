package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Aggregator computes the moment a treatment last saw any clinical activity:
// the maximum timestamp across the treatment record itself, monitoring
// visits, doctor notes, protocol updates, milestones, medical orders and
// punctures.
type Aggregator struct {
	repo   Repository
	logger zerolog.Logger
}

func NewAggregator(repo Repository, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		repo:   repo,
		logger: logger.With().Str("component", "activity").Logger(),
	}
}

// LastActivity returns the latest activity timestamp for the treatment, or
// nil when not even the treatment's own creation timestamp can be resolved.
// The streams are queried concurrently; a failing stream is logged and
// treated as empty so one broken source cannot stall the inactivity sweep.
func (a *Aggregator) LastActivity(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error) {
	created, updated, err := a.repo.TreatmentTimestamps(ctx, treatmentID)
	if err != nil {
		return nil, err
	}

	type source struct {
		name string
		fn   func(context.Context, uuid.UUID) (*time.Time, error)
	}
	sources := []source{
		{"monitoring_visit", a.repo.LatestMonitoringVisit},
		{"doctor_note", a.repo.LatestDoctorNote},
		{"protocol_update", a.repo.LatestProtocolUpdate},
		{"milestone", a.repo.LatestMilestone},
		{"medical_order", a.repo.LatestMedicalOrder},
		{"puncture", a.repo.LatestPuncture},
	}

	var (
		mu     sync.Mutex
		latest *time.Time
	)
	bump := func(ts *time.Time) {
		if ts == nil {
			return
		}
		mu.Lock()
		if latest == nil || ts.After(*latest) {
			latest = ts
		}
		mu.Unlock()
	}

	bump(created)
	bump(updated)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src source) {
			defer wg.Done()
			ts, err := src.fn(ctx, treatmentID)
			if err != nil {
				a.logger.Warn().Err(err).
					Str("treatment_id", treatmentID.String()).
					Str("source", src.name).
					Msg("activity source failed")
				return
			}
			bump(ts)
		}(src)
	}
	wg.Wait()

	return latest, nil
}
