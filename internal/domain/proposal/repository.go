package proposal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Proposal) error

	// GetByID retrieves a proposal by primary key. Returns ErrProposalNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error)

	Update(ctx context.Context, p *Proposal) error

	// ListByCase returns all proposals for a case ordered by created_at.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*Proposal, error)

	List(ctx context.Context, q *ListProposalsQuery) (*PagedProposals, error)

	// HasPendingForDoctor checks whether a doctor already has a pending
	// proposal on the case.
	HasPendingForDoctor(ctx context.Context, caseID, doctorID uuid.UUID) (bool, error)

	// Accept performs the selection write set atomically: the chosen proposal
	// moves pending → accepted, every sibling pending proposal moves to
	// rejected, and the case records chosen_proposal_id and moves to
	// in_progress. All writes are status-guarded; if the case or the proposal
	// changed underneath the caller, ErrSelectionConflict is returned and
	// nothing is written.
	Accept(ctx context.Context, caseID, proposalID uuid.UUID, acceptedAt time.Time) (*Proposal, error)

	// DeletePending removes a proposal, guarded on status=pending.
	// Returns ErrProposalNotPending when the guard misses.
	DeletePending(ctx context.Context, id uuid.UUID) error
}
