package dentalcase

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Case) error

	// GetByID retrieves a case by primary key. Returns ErrCaseNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)

	Update(ctx context.Context, id uuid.UUID, cmd *UpdateCaseCommand) (*Case, error)

	// UpdateStatus persists status, payment status, assignment and
	// chosen-proposal changes already applied to the entity. The write only
	// lands if the stored status still equals expected; a stale entity gets
	// ErrCaseModified instead of clobbering a concurrent change.
	UpdateStatus(ctx context.Context, c *Case, expected Status) error

	List(ctx context.Context, q *ListCasesQuery) (*PagedCases, error)
}
