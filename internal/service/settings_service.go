package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/settings"
)

type SettingsService struct {
	repo     settings.Repository
	auditSvc *AuditService
	log      *zap.Logger
}

func NewSettingsService(repo settings.Repository, auditSvc *AuditService, log *zap.Logger) *SettingsService {
	return &SettingsService{repo: repo, auditSvc: auditSvc, log: log}
}

func (s *SettingsService) GetSettings(ctx context.Context, callerRole string) (*settings.Settings, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}
	return s.repo.Get(ctx)
}

// UpdateSettings changes platform billing defaults. The resulting commission
// config must validate; changes only affect future settlements, never
// already-written ledger entries.
func (s *SettingsService) UpdateSettings(ctx context.Context, cmd *settings.UpdateSettingsCommand, callerID uuid.UUID, callerRole string, ip string) (*settings.Settings, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}

	current, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}

	next := current.CommissionConfig()
	if cmd.CommissionType != nil {
		next.Type = *cmd.CommissionType
	}
	if cmd.CommissionRate != nil {
		next.Rate = *cmd.CommissionRate
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if cmd.MonthlyFee != nil && cmd.MonthlyFee.IsNegative() {
		return nil, &ValidationError{Fields: []string{"monthly_fee cannot be negative"}}
	}
	if cmd.PremiumVisibilityFee != nil && cmd.PremiumVisibilityFee.IsNegative() {
		return nil, &ValidationError{Fields: []string{"premium_visibility_fee cannot be negative"}}
	}

	updated, err := s.repo.Update(ctx, cmd)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "billing_settings", ResourceID: "1", IPAddress: ip,
	})

	s.log.Info("billing settings updated",
		zap.String("commission_type", string(updated.CommissionType)),
		zap.String("commission_rate", updated.CommissionRate.String()),
	)

	return updated, nil
}
