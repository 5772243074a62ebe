package sweep

import (
	"context"
	"time"
)

// LeaseRepository guards the daily sweep against concurrent runs across
// replicas: the first instance to claim a calendar day runs the sweep, the
// rest stand down.
type LeaseRepository interface {
	// Acquire claims the sweep for the given day. It returns true when the
	// caller won the claim, false when another instance already holds it.
	Acquire(ctx context.Context, day time.Time) (bool, error)
	// RecordResult stores the outcome of a finished sweep on its claim row.
	RecordResult(ctx context.Context, day time.Time, res Result) error
}
