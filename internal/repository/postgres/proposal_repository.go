package postgres

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
)

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err, "idx_proposals_one_pending") {
			return proposal.ErrDuplicateProposal
		}
		return err
	}
	return nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	var p proposal.Proposal
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, proposal.ErrProposalNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProposalRepository) Update(ctx context.Context, p *proposal.Proposal) error {
	res := r.db.WithContext(ctx).
		Model(&proposal.Proposal{}).
		Where("id = ? AND deleted_at IS NULL", p.ID).
		Updates(map[string]any{
			"cost":          p.Cost,
			"previous_cost": p.PreviousCost,
			"details":       p.Details,
			"notes":         p.Notes,
			"duration":      p.Duration,
			"status":        p.Status,
			"accepted_at":   p.AcceptedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return proposal.ErrProposalNotFound
	}
	return nil
}

func (r *ProposalRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*proposal.Proposal, error) {
	var proposals []*proposal.Proposal
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND deleted_at IS NULL", caseID).
		Order("created_at ASC").
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

func (r *ProposalRepository) List(ctx context.Context, q *proposal.ListProposalsQuery) (*proposal.PagedProposals, error) {
	query := r.db.WithContext(ctx).Model(&proposal.Proposal{}).Where("deleted_at IS NULL")

	if q.CaseID != nil {
		query = query.Where("case_id = ?", *q.CaseID)
	}
	if q.DoctorID != nil {
		query = query.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var proposals []*proposal.Proposal
	err := query.Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}

	return &proposal.PagedProposals{
		Proposals:  proposals,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}

func (r *ProposalRepository) HasPendingForDoctor(ctx context.Context, caseID, doctorID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&proposal.Proposal{}).
		Where("case_id = ? AND doctor_id = ? AND status = ? AND deleted_at IS NULL",
			caseID, doctorID, proposal.StatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Accept runs the whole selection write set in one transaction with
// status-guarded updates. A zero-row update means some other selection got
// there first; the transaction rolls back and ErrSelectionConflict surfaces.
func (r *ProposalRepository) Accept(ctx context.Context, caseID, proposalID uuid.UUID, acceptedAt time.Time) (*proposal.Proposal, error) {
	var accepted proposal.Proposal

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&proposal.Proposal{}).
			Where("id = ? AND case_id = ? AND status = ? AND deleted_at IS NULL",
				proposalID, caseID, proposal.StatusPending).
			Updates(map[string]any{
				"status":      proposal.StatusAccepted,
				"accepted_at": acceptedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return proposal.ErrSelectionConflict
		}

		if err := tx.Model(&proposal.Proposal{}).
			Where("case_id = ? AND id <> ? AND status = ? AND deleted_at IS NULL",
				caseID, proposalID, proposal.StatusPending).
			Update("status", proposal.StatusRejected).Error; err != nil {
			return err
		}

		res = tx.Model(&dentalcase.Case{}).
			Where("id = ? AND status IN ? AND chosen_proposal_id IS NULL AND deleted_at IS NULL",
				caseID, []dentalcase.Status{dentalcase.StatusOpen, dentalcase.StatusAssigned}).
			Updates(map[string]any{
				"status":             dentalcase.StatusInProgress,
				"chosen_proposal_id": proposalID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return proposal.ErrSelectionConflict
		}

		return tx.Where("id = ?", proposalID).First(&accepted).Error
	})
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}

func (r *ProposalRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&proposal.Proposal{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", id, proposal.StatusPending).
		Update("deleted_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either missing or no longer pending; disambiguate for the caller.
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&proposal.Proposal{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return proposal.ErrProposalNotFound
		}
		return proposal.ErrProposalNotPending
	}
	return nil
}
