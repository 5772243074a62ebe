package treatment

import (
	"context"
	"errors"
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

// NewRepoPG returns the Postgres-backed treatment repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const treatmentCols = `id, medical_history_id, doctor_id, status, start_date,
	closure_date, closure_reason, notes, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, t *Treatment) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment (id, medical_history_id, doctor_id, status, start_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		t.ID, t.MedicalHistoryID, t.DoctorID, t.Status, t.StartDate, t.Notes)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return fmt.Errorf("insert treatment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+treatmentCols+` FROM treatment WHERE id = $1`, id)
	t, err := scanTreatment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, fmt.Errorf("get treatment: %w", err)
	}
	return t, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Treatment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatment`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count treatments: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+treatmentCols+` FROM treatment
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list treatments: %w", err)
	}
	defer rows.Close()

	out, err := collectTreatments(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+treatmentCols+` FROM treatment
		WHERE status = $1 ORDER BY created_at ASC`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active treatments: %w", err)
	}
	defer rows.Close()

	return collectTreatments(rows)
}

func (r *repoPG) Update(ctx context.Context, t *Treatment) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE treatment SET
			doctor_id = $2, status = $3, start_date = $4,
			closure_date = $5, closure_reason = $6, notes = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.DoctorID, t.Status, t.StartDate, t.ClosureDate, t.ClosureReason, t.Notes)
	if err := row.Scan(&t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTreatmentNotFound
		}
		return fmt.Errorf("update treatment: %w", err)
	}
	return nil
}

func (r *repoPG) Contacts(ctx context.Context, id uuid.UUID) (*Contacts, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT mh.patient_name, mh.patient_email, COALESCE(d.email, '')
		FROM treatment t
		JOIN medical_history mh ON mh.id = t.medical_history_id
		LEFT JOIN doctor d ON d.id = t.doctor_id
		WHERE t.id = $1`, id)
	var c Contacts
	if err := row.Scan(&c.PatientName, &c.PatientEmail, &c.DoctorEmail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, fmt.Errorf("treatment contacts: %w", err)
	}
	return &c, nil
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.MedicalHistoryID, &t.DoctorID, &t.Status, &t.StartDate,
		&t.ClosureDate, &t.ClosureReason, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTreatments(rows pgx.Rows) ([]*Treatment, error) {
	out := []*Treatment{}
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan treatment: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate treatments: %w", err)
	}
	return out, nil
}
