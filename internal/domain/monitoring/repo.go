package monitoring

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists monitoring plans.
type Repository interface {
	// Replace drops every existing plan row for the treatment and inserts
	// the new set in a single transaction, so regeneration is atomic:
	// readers see either the old plan or the new one, never a mix.
	Replace(ctx context.Context, treatmentID uuid.UUID, plans []*Plan) error
	ListByTreatment(ctx context.Context, treatmentID uuid.UUID) ([]*Plan, error)
	UpdateStatus(ctx context.Context, planID uuid.UUID, status PlanStatus) error
}
