package postgres

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
)

type CaseRepository struct {
	db *gorm.DB
}

func NewCaseRepository(db *gorm.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

func (r *CaseRepository) Create(ctx context.Context, c *dentalcase.Case) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*dentalcase.Case, error) {
	var c dentalcase.Case
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dentalcase.ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) Update(ctx context.Context, id uuid.UUID, cmd *dentalcase.UpdateCaseCommand) (*dentalcase.Case, error) {
	updates := map[string]any{}
	if cmd.Title != nil {
		updates["title"] = *cmd.Title
	}
	if cmd.Description != nil {
		updates["description"] = *cmd.Description
	}
	if cmd.TreatmentNeeded != nil {
		updates["treatment_needed"] = *cmd.TreatmentNeeded
	}
	if cmd.Urgency != nil {
		updates["urgency"] = *cmd.Urgency
	}
	if cmd.Images != nil {
		updates["images"] = *cmd.Images
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).
			Model(&dentalcase.Case{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, dentalcase.ErrCaseNotFound
		}
	}

	return r.GetByID(ctx, id)
}

func (r *CaseRepository) UpdateStatus(ctx context.Context, c *dentalcase.Case, expected dentalcase.Status) error {
	res := r.db.WithContext(ctx).
		Model(&dentalcase.Case{}).
		Where("id = ? AND deleted_at IS NULL AND status = ?", c.ID, expected).
		Updates(map[string]any{
			"status":              c.Status,
			"payment_status":      c.PaymentStatus,
			"assigned_doctor_ids": c.AssignedDoctorIDs,
			"chosen_proposal_id":  c.ChosenProposalID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Guard missed: either the case is gone or its status moved under us.
		if _, err := r.GetByID(ctx, c.ID); err != nil {
			return err
		}
		return dentalcase.ErrCaseModified
	}
	return nil
}

func (r *CaseRepository) List(ctx context.Context, q *dentalcase.ListCasesQuery) (*dentalcase.PagedCases, error) {
	query := r.db.WithContext(ctx).Model(&dentalcase.Case{}).Where("deleted_at IS NULL")

	if q.PatientID != nil {
		query = query.Where("patient_id = ?", *q.PatientID)
	}
	if q.AssignedDoctorID != nil {
		// JSON containment on the assigned-doctor set.
		query = query.Where("assigned_doctor_ids @> ?", `["`+q.AssignedDoctorID.String()+`"]`)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if q.Urgency != nil {
		query = query.Where("urgency = ?", *q.Urgency)
	}
	if q.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *q.PaymentStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var cases []*dentalcase.Case
	err := query.Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&cases).Error
	if err != nil {
		return nil, err
	}

	return &dentalcase.PagedCases{
		Cases:      cases,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}
