package memory

import (
	"context"
	"sync"

	"github.com/dentacore/dentaflow/internal/domain/settings"
)

type SettingsRepository struct {
	mu       sync.Mutex
	settings settings.Settings
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{settings: settings.Defaults()}
}

func (r *SettingsRepository) Get(ctx context.Context) (*settings.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := r.settings
	return &cp, nil
}

func (r *SettingsRepository) Update(ctx context.Context, cmd *settings.UpdateSettingsCommand) (*settings.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd.CommissionType != nil {
		r.settings.CommissionType = *cmd.CommissionType
	}
	if cmd.CommissionRate != nil {
		r.settings.CommissionRate = *cmd.CommissionRate
	}
	if cmd.MonthlyFee != nil {
		r.settings.MonthlyFee = *cmd.MonthlyFee
	}
	if cmd.PremiumVisibilityFee != nil {
		r.settings.PremiumVisibilityFee = *cmd.PremiumVisibilityFee
	}

	cp := r.settings
	return &cp, nil
}
