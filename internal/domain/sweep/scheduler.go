package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler triggers the sweep once a day at a fixed local-UTC hour, guarded
// by the lease so only one replica runs it.
type Scheduler struct {
	sweeper *Sweeper
	lease   LeaseRepository
	hour    int
	logger  zerolog.Logger
}

func NewScheduler(sweeper *Sweeper, lease LeaseRepository, hour int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		lease:   lease,
		hour:    hour,
		logger:  logger.With().Str("component", "sweep-scheduler").Logger(),
	}
}

// Start blocks until the context is cancelled, firing the sweep at the next
// occurrence of the configured hour and every 24h after. Run it on its own
// goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.nextRun(s.sweeper.Now().UTC())
		s.logger.Info().Time("next_run", next).Msg("sweep scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("sweep scheduler stopped")
			return
		case <-timer.C:
		}

		s.RunOnce(ctx)
	}
}

// RunOnce performs one lease-guarded sweep pass.
func (s *Scheduler) RunOnce(ctx context.Context) {
	day := s.sweeper.Now().UTC().Truncate(24 * time.Hour)

	won, err := s.lease.Acquire(ctx, day)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep lease acquisition failed")
		return
	}
	if !won {
		s.logger.Info().Time("day", day).Msg("sweep already claimed for today")
		return
	}

	res, err := s.sweeper.Run(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep run failed")
		return
	}
	if err := s.lease.RecordResult(ctx, day, res); err != nil {
		s.logger.Warn().Err(err).Msg("sweep result not recorded")
	}
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
