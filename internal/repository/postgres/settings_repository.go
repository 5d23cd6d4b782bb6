package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dentacore/dentaflow/internal/domain/settings"
)

type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	var s settings.Settings
	err := r.db.WithContext(ctx).First(&s, 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settings.ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepository) Update(ctx context.Context, cmd *settings.UpdateSettingsCommand) (*settings.Settings, error) {
	updates := map[string]any{}
	if cmd.CommissionType != nil {
		updates["commission_type"] = *cmd.CommissionType
	}
	if cmd.CommissionRate != nil {
		updates["commission_rate"] = *cmd.CommissionRate
	}
	if cmd.MonthlyFee != nil {
		updates["monthly_fee"] = *cmd.MonthlyFee
	}
	if cmd.PremiumVisibilityFee != nil {
		updates["premium_visibility_fee"] = *cmd.PremiumVisibilityFee
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).
			Model(&settings.Settings{}).
			Where("id = ?", 1).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, settings.ErrSettingsNotFound
		}
	}

	return r.Get(ctx)
}
