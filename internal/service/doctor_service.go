package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/commission"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
)

type DoctorService struct {
	repo     doctor.Repository
	auditSvc *AuditService
	log      *zap.Logger
}

func NewDoctorService(repo doctor.Repository, auditSvc *AuditService, log *zap.Logger) *DoctorService {
	return &DoctorService{repo: repo, auditSvc: auditSvc, log: log}
}

func (s *DoctorService) CreateDoctor(ctx context.Context, cmd *doctor.CreateDoctorCommand, callerID uuid.UUID, callerRole string, ip string) (*doctor.Doctor, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}

	var errs []string
	if strings.TrimSpace(cmd.FirstName) == "" {
		errs = append(errs, "first_name is required")
	}
	if strings.TrimSpace(cmd.LastName) == "" {
		errs = append(errs, "last_name is required")
	}
	if cmd.ExperienceYears < 0 {
		errs = append(errs, "experience_years cannot be negative")
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	d := &doctor.Doctor{
		FirstName:       strings.TrimSpace(cmd.FirstName),
		LastName:        strings.TrimSpace(cmd.LastName),
		Specialty:       cmd.Specialty,
		Chamber:         cmd.Chamber,
		ExperienceYears: cmd.ExperienceYears,
		Status:          doctor.StatusActive,
		CreatedBy:       cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, d); err != nil {
		s.log.Error("failed to create doctor", zap.Error(err))
		return nil, fmt.Errorf("creating doctor: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "doctor", ResourceID: d.ID.String(), IPAddress: ip,
	})

	return d, nil
}

func (s *DoctorService) GetDoctor(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateDoctor applies profile and commission-override changes. A commission
// override must be valid as a standalone config before it is stored.
func (s *DoctorService) UpdateDoctor(ctx context.Context, id uuid.UUID, cmd *doctor.UpdateDoctorCommand, callerID uuid.UUID, callerRole string, ip string) (*doctor.Doctor, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}

	if cmd.CommissionType != nil || cmd.CommissionRate != nil {
		if cmd.CommissionType == nil || cmd.CommissionRate == nil {
			return nil, &ValidationError{Fields: []string{"commission_type and commission_rate must be set together"}}
		}
		cfg := commission.Config{Type: *cmd.CommissionType, Rate: *cmd.CommissionRate}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Update(ctx, id, cmd)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "doctor", ResourceID: id.String(), IPAddress: ip,
	})

	return updated, nil
}

func (s *DoctorService) ListDoctors(ctx context.Context, page, pageSize int) ([]*doctor.Doctor, int64, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	return s.repo.List(ctx, page, pageSize)
}
