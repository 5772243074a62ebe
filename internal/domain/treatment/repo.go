package treatment

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists treatments.
type Repository interface {
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Treatment, error)
	List(ctx context.Context, limit, offset int) ([]*Treatment, int, error)
	// ListActive returns every treatment still in the active state,
	// oldest first. The inactivity sweep iterates this set.
	ListActive(ctx context.Context) ([]*Treatment, error)
	// Update persists the mutable columns of an already loaded treatment.
	Update(ctx context.Context, t *Treatment) error
	// Contacts resolves the notification recipients for a treatment from
	// the linked medical history and assigned doctor.
	Contacts(ctx context.Context, id uuid.UUID) (*Contacts, error)
}
