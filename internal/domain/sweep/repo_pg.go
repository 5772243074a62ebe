package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type leaseRepoPG struct{ pool *pgxpool.Pool }

// NewLeaseRepoPG returns the Postgres-backed sweep lease.
func NewLeaseRepoPG(pool *pgxpool.Pool) LeaseRepository {
	return &leaseRepoPG{pool: pool}
}

// Acquire relies on the primary key of sweep_run: the insert succeeds for
// exactly one caller per day, everyone else conflicts and backs off.
func (r *leaseRepoPG) Acquire(ctx context.Context, day time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO sweep_run (run_date) VALUES ($1)
		ON CONFLICT (run_date) DO NOTHING`,
		day.UTC().Format("2006-01-02"))
	if err != nil {
		return false, fmt.Errorf("acquire sweep lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *leaseRepoPG) RecordResult(ctx context.Context, day time.Time, res Result) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sweep_run SET
			finished_at = now(),
			scanned = $2, warned = $3, closed = $4, skipped = $5, failed = $6
		WHERE run_date = $1`,
		day.UTC().Format("2006-01-02"),
		res.Scanned, res.Warned, res.Closed, res.Skipped, res.Failed)
	if err != nil {
		return fmt.Errorf("record sweep result: %w", err)
	}
	return nil
}
