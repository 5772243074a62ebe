package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository reads the latest timestamp from each clinical record stream a
// treatment can accumulate activity on. A nil time means the treatment has no
// record of that kind.
type Repository interface {
	TreatmentTimestamps(ctx context.Context, treatmentID uuid.UUID) (created *time.Time, updated *time.Time, err error)
	LatestMonitoringVisit(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
	LatestDoctorNote(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
	LatestProtocolUpdate(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
	LatestMilestone(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
	LatestMedicalOrder(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
	LatestPuncture(ctx context.Context, treatmentID uuid.UUID) (*time.Time, error)
}
