package audit

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists audit entries. The trail is append-only: there is no
// update or delete.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	ListByRecord(ctx context.Context, table string, recordID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
