package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Doctor) error

	// GetByID retrieves a doctor by primary key. Returns ErrDoctorNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// GetByIDs fetches several doctors in one round trip, keyed by ID.
	// Missing IDs are simply absent from the result.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Doctor, error)

	Update(ctx context.Context, id uuid.UUID, cmd *UpdateDoctorCommand) (*Doctor, error)

	List(ctx context.Context, page, pageSize int) ([]*Doctor, int64, error)
}
