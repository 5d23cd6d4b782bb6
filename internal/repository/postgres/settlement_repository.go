package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentacore/dentaflow/internal/domain/settlement"
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, s *settlement.PendingSettlement) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err, "idx_billing_pending_settlements_case_id") {
			return settlement.ErrAlreadySettled
		}
		return err
	}
	return nil
}

func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.PendingSettlement, error) {
	var s settlement.PendingSettlement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settlement.ErrSettlementNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettlementRepository) GetByCase(ctx context.Context, caseID uuid.UUID) (*settlement.PendingSettlement, error) {
	var s settlement.PendingSettlement
	err := r.db.WithContext(ctx).Where("case_id = ?", caseID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settlement.ErrSettlementNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettlementRepository) Update(ctx context.Context, s *settlement.PendingSettlement) error {
	res := r.db.WithContext(ctx).
		Model(&settlement.PendingSettlement{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"status":            s.Status,
			"attempts":          s.Attempts,
			"gateway_ref":       s.GatewayRef,
			"channel_signalled": s.ChannelSignalled,
			"completed_at":      s.CompletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return settlement.ErrSettlementNotFound
	}
	return nil
}

func (r *SettlementRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&settlement.PendingSettlement{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return settlement.ErrSettlementNotFound
	}
	return nil
}

func (r *SettlementRepository) ListIncomplete(ctx context.Context, limit int) ([]*settlement.PendingSettlement, error) {
	var settlements []*settlement.PendingSettlement
	err := r.db.WithContext(ctx).
		Where("status <> ?", settlement.StatusCompleted).
		Order("created_at ASC").
		Limit(limit).
		Find(&settlements).Error
	if err != nil {
		return nil, err
	}
	return settlements, nil
}
