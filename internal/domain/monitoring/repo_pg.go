package monitoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fivcare/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed monitoring plan repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const planCols = `id, treatment_id, sequence, planned_day, estimated_date,
	min_date, max_date, status, appointment_id, created_at`

func (r *repoPG) Replace(ctx context.Context, treatmentID uuid.UUID, plans []*Plan) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tx := db.TxFromContext(ctx)
		if _, err := tx.Exec(ctx,
			`DELETE FROM monitoring_plan WHERE treatment_id = $1`, treatmentID); err != nil {
			return fmt.Errorf("clear monitoring plan: %w", err)
		}
		for _, p := range plans {
			if p.ID == uuid.Nil {
				p.ID = uuid.New()
			}
			row := tx.QueryRow(ctx, `
				INSERT INTO monitoring_plan
					(id, treatment_id, sequence, planned_day, estimated_date, min_date, max_date, status, appointment_id)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				RETURNING created_at`,
				p.ID, p.TreatmentID, p.Sequence, p.PlannedDay, p.EstimatedDate,
				p.MinDate, p.MaxDate, p.Status, p.AppointmentID)
			if err := row.Scan(&p.CreatedAt); err != nil {
				return fmt.Errorf("insert plan row %d: %w", p.Sequence, err)
			}
		}
		return nil
	})
}

func (r *repoPG) ListByTreatment(ctx context.Context, treatmentID uuid.UUID) ([]*Plan, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+planCols+` FROM monitoring_plan
		WHERE treatment_id = $1
		ORDER BY sequence ASC, created_at ASC`, treatmentID)
	if err != nil {
		return nil, fmt.Errorf("list monitoring plan: %w", err)
	}
	defer rows.Close()

	out := []*Plan{}
	for rows.Next() {
		var p Plan
		err := rows.Scan(&p.ID, &p.TreatmentID, &p.Sequence, &p.PlannedDay, &p.EstimatedDate,
			&p.MinDate, &p.MaxDate, &p.Status, &p.AppointmentID, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return out, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, planID uuid.UUID, status PlanStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE monitoring_plan SET status = $2 WHERE id = $1`, planID, status)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}
