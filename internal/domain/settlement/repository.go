package settlement

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *PendingSettlement) error

	GetByID(ctx context.Context, id uuid.UUID) (*PendingSettlement, error)

	// GetByCase returns the settlement for a case, or ErrSettlementNotFound.
	GetByCase(ctx context.Context, caseID uuid.UUID) (*PendingSettlement, error)

	Update(ctx context.Context, s *PendingSettlement) error

	// Delete removes a settlement intent whose capture never happened.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListIncomplete returns settlements that have not reached completed,
	// oldest first, for the retry worker.
	ListIncomplete(ctx context.Context, limit int) ([]*PendingSettlement, error)
}
