package ledger

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Append assigns the next Seq for the entry's subject and persists it.
	// Returns ErrDuplicateKey when the idempotency key was already used.
	Append(ctx context.Context, e *Entry) error

	// AppendAll persists a batch atomically: either every entry is written
	// with its Seq assigned, or none are.
	AppendAll(ctx context.Context, entries []*Entry) error

	// GetByIdempotencyKey returns the entry previously written under the key,
	// or ErrEntryNotFound.
	GetByIdempotencyKey(ctx context.Context, subjectID uuid.UUID, key string) (*Entry, error)

	// ListBySubject returns every entry for a subject ordered by Seq
	// ascending, from a single consistent read. All folds go through this.
	ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*Entry, error)

	// Statement returns a subject's entries newest-first, paged, for display.
	Statement(ctx context.Context, subjectID uuid.UUID, page, pageSize int) ([]*Entry, int64, error)
}
