package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed activity repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) TreatmentTimestamps(ctx context.Context, treatmentID uuid.UUID) (*time.Time, *time.Time, error) {
	var created, updated *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT created_at, updated_at FROM treatment WHERE id = $1`, treatmentID).
		Scan(&created, &updated)
	if err != nil {
		return nil, nil, fmt.Errorf("treatment timestamps: %w", err)
	}
	return created, updated, nil
}

// latest runs a MAX() query; the aggregate returns NULL when the treatment
// has no rows in the stream, which scans cleanly into a nil pointer.
func (r *repoPG) latest(ctx context.Context, table string, treatmentID uuid.UUID) (*time.Time, error) {
	var ts *time.Time
	q := fmt.Sprintf(`SELECT MAX(created_at) FROM %s WHERE treatment_id = $1`, table)
	if err := r.pool.QueryRow(ctx, q, treatmentID).Scan(&ts); err != nil {
		return nil, fmt.Errorf("latest %s: %w", table, err)
	}
	return ts, nil
}

func (r *repoPG) LatestMonitoringVisit(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return r.latest(ctx, "monitoring_visit", id)
}

func (r *repoPG) LatestDoctorNote(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return r.latest(ctx, "doctor_note", id)
}

func (r *repoPG) LatestProtocolUpdate(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return r.latest(ctx, "protocol_update", id)
}

func (r *repoPG) LatestMilestone(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return r.latest(ctx, "treatment_milestone", id)
}

func (r *repoPG) LatestMedicalOrder(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return r.latest(ctx, "medical_order", id)
}

func (r *repoPG) LatestPuncture(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	return r.latest(ctx, "puncture", id)
}
