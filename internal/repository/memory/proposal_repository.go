package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
)

// ProposalRepository holds proposals and, for Accept, reaches into the case
// repository so the whole selection write set happens under one lock the way
// the postgres implementation uses one transaction.
type ProposalRepository struct {
	mu        sync.Mutex
	proposals map[uuid.UUID]*proposal.Proposal
	caseRepo  *CaseRepository
}

func NewProposalRepository(caseRepo *CaseRepository) *ProposalRepository {
	return &ProposalRepository{
		proposals: make(map[uuid.UUID]*proposal.Proposal),
		caseRepo:  caseRepo,
	}
}

func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.proposals {
		if existing.DeletedAt == nil &&
			existing.CaseID == p.CaseID &&
			existing.DoctorID == p.DoctorID &&
			existing.Status == proposal.StatusPending {
			return proposal.ErrDuplicateProposal
		}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	r.proposals[p.ID] = &cp
	return nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok || p.DeletedAt != nil {
		return nil, proposal.ErrProposalNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *ProposalRepository) Update(ctx context.Context, p *proposal.Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.proposals[p.ID]
	if !ok || stored.DeletedAt != nil {
		return proposal.ErrProposalNotFound
	}

	stored.Cost = p.Cost
	stored.PreviousCost = p.PreviousCost
	stored.Details = p.Details
	stored.Notes = p.Notes
	stored.Duration = p.Duration
	stored.Status = p.Status
	stored.AcceptedAt = p.AcceptedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *ProposalRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*proposal.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*proposal.Proposal
	for _, p := range r.proposals {
		if p.DeletedAt == nil && p.CaseID == caseID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *ProposalRepository) List(ctx context.Context, q *proposal.ListProposalsQuery) (*proposal.PagedProposals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*proposal.Proposal
	for _, p := range r.proposals {
		if p.DeletedAt != nil {
			continue
		}
		if q.CaseID != nil && p.CaseID != *q.CaseID {
			continue
		}
		if q.DoctorID != nil && p.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != nil && p.Status != *q.Status {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (q.Page - 1) * q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &proposal.PagedProposals{
		Proposals:  matched[start:end],
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}

func (r *ProposalRepository) HasPendingForDoctor(ctx context.Context, caseID, doctorID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.proposals {
		if p.DeletedAt == nil &&
			p.CaseID == caseID &&
			p.DoctorID == doctorID &&
			p.Status == proposal.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *ProposalRepository) Accept(ctx context.Context, caseID, proposalID uuid.UUID, acceptedAt time.Time) (*proposal.Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caseRepo.mu.Lock()
	defer r.caseRepo.mu.Unlock()

	chosen, ok := r.proposals[proposalID]
	if !ok || chosen.DeletedAt != nil || chosen.CaseID != caseID || chosen.Status != proposal.StatusPending {
		return nil, proposal.ErrSelectionConflict
	}

	c, ok := r.caseRepo.cases[caseID]
	if !ok || c.DeletedAt != nil || !c.AcceptsProposals() || c.ChosenProposalID != nil {
		return nil, proposal.ErrSelectionConflict
	}

	at := acceptedAt
	chosen.Status = proposal.StatusAccepted
	chosen.AcceptedAt = &at

	for _, sibling := range r.proposals {
		if sibling.DeletedAt == nil &&
			sibling.CaseID == caseID &&
			sibling.ID != proposalID &&
			sibling.Status == proposal.StatusPending {
			sibling.Status = proposal.StatusRejected
		}
	}

	pid := proposalID
	c.Status = dentalcase.StatusInProgress
	c.ChosenProposalID = &pid

	cp := *chosen
	return &cp, nil
}

func (r *ProposalRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok || p.DeletedAt != nil {
		return proposal.ErrProposalNotFound
	}
	if p.Status != proposal.StatusPending {
		return proposal.ErrProposalNotPending
	}

	now := time.Now()
	p.DeletedAt = &now
	return nil
}
