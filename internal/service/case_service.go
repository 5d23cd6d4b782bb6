package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
)

type CaseService struct {
	repo       dentalcase.Repository
	doctorRepo doctor.Repository
	auditSvc   *AuditService
	log        *zap.Logger

	// caseLocks serializes read-modify-write transitions per case, notably
	// the assignment set, which would otherwise lose entries under
	// concurrent assigns.
	caseLocks *keyMutex
}

func NewCaseService(repo dentalcase.Repository, doctorRepo doctor.Repository, auditSvc *AuditService, log *zap.Logger) *CaseService {
	return &CaseService{repo: repo, doctorRepo: doctorRepo, auditSvc: auditSvc, log: log, caseLocks: newKeyMutex()}
}

func (s *CaseService) SubmitCase(ctx context.Context, cmd *dentalcase.CreateCaseCommand, callerID uuid.UUID, callerRole string, ip string) (*dentalcase.Case, error) {
	if err := validateCreateCaseCommand(cmd); err != nil {
		return nil, err
	}

	// Patients may only open cases for themselves.
	if callerRole == "patient" && cmd.PatientID != callerID {
		return nil, ErrForbidden
	}

	c := &dentalcase.Case{
		PatientID:       cmd.PatientID,
		Title:           strings.TrimSpace(cmd.Title),
		Description:     cmd.Description,
		TreatmentNeeded: cmd.TreatmentNeeded,
		Urgency:         cmd.Urgency,
		Images:          cmd.Images,
		Status:          dentalcase.StatusPendingReview,
		PaymentStatus:   dentalcase.PaymentUnpaid,
		CreatedBy:       cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		s.log.Error("failed to create case", zap.Error(err))
		return nil, fmt.Errorf("creating case: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "create",
		ResourceType: "case",
		ResourceID:   c.ID.String(),
		IPAddress:    ip,
	})

	s.log.Info("case submitted",
		zap.String("case_id", c.ID.String()),
		zap.String("patient_id", c.PatientID.String()),
		zap.String("urgency", string(c.Urgency)),
	)

	return c, nil
}

func (s *CaseService) GetCase(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID, ip string) (*dentalcase.Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch callerRole {
	case "patient":
		if c.PatientID != callerID {
			return nil, ErrForbidden
		}
	case "doctor":
		if callerDoctorID == nil || !c.IsDoctorAssigned(*callerDoctorID) {
			return nil, ErrForbidden
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "read", ResourceType: "case", ResourceID: id.String(), IPAddress: ip,
	})

	return c, nil
}

// ApproveCase moves a submitted case into the open pool where admins can
// assign doctors. Admin only.
func (s *CaseService) ApproveCase(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*dentalcase.Case, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanTransitionTo(dentalcase.StatusOpen) {
		return nil, dentalcase.ErrInvalidStatusTransition
	}

	prev := c.Status
	c.Status = dentalcase.StatusOpen
	if err := s.repo.UpdateStatus(ctx, c, prev); err != nil {
		return nil, fmt.Errorf("approving case: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "case", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"open"}`,
	})

	return c, nil
}

// AssignDoctor invites a doctor to propose on a case. Assigning an already
// assigned doctor is a no-op. Admin only.
func (s *CaseService) AssignDoctor(ctx context.Context, caseID, doctorID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*dentalcase.Case, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}

	s.caseLocks.Lock(caseID)
	defer s.caseLocks.Unlock(caseID)

	c, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !c.AcceptsProposals() {
		return nil, dentalcase.ErrCaseNotOpen
	}

	d, err := s.doctorRepo.GetByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("verifying doctor: %w", err)
	}
	if !d.IsActive() {
		return nil, doctor.ErrDoctorInactive
	}

	c.AssignDoctor(doctorID)
	if err := s.repo.UpdateStatus(ctx, c, c.Status); err != nil {
		return nil, fmt.Errorf("assigning doctor: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "case", ResourceID: caseID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"assigned_doctor":"%s"}`, doctorID),
	})

	return c, nil
}

// CancelCase cancels an unpaid, non-terminal case. Patients may cancel their
// own cases; admins may cancel any.
func (s *CaseService) CancelCase(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*dentalcase.Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "patient" && c.PatientID != callerID {
		return nil, ErrForbidden
	}
	if callerRole == "doctor" {
		return nil, ErrForbidden
	}

	prev := c.Status
	if err := c.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, c, prev); err != nil {
		return nil, fmt.Errorf("cancelling case: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "case", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"cancelled"}`,
	})

	return c, nil
}

func (s *CaseService) UpdateCase(ctx context.Context, id uuid.UUID, cmd *dentalcase.UpdateCaseCommand, callerID uuid.UUID, callerRole string, ip string) (*dentalcase.Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "patient" && c.PatientID != callerID {
		return nil, ErrForbidden
	}
	if callerRole == "doctor" {
		return nil, ErrForbidden
	}

	// Details are frozen once treatment is underway.
	if c.Status == dentalcase.StatusInProgress || c.Status == dentalcase.StatusCompleted || c.Status == dentalcase.StatusCancelled {
		return nil, dentalcase.ErrInvalidStatusTransition
	}
	if cmd.Urgency != nil && !cmd.Urgency.IsValid() {
		return nil, dentalcase.ErrInvalidUrgency
	}

	updated, err := s.repo.Update(ctx, id, cmd)
	if err != nil {
		return nil, fmt.Errorf("updating case: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "case", ResourceID: id.String(), IPAddress: ip,
	})

	return updated, nil
}

func (s *CaseService) ListCases(ctx context.Context, q *dentalcase.ListCasesQuery, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID) (*dentalcase.PagedCases, error) {
	// Patients see only their own cases; doctors only cases they are
	// assigned to.
	switch callerRole {
	case "patient":
		q.PatientID = &callerID
	case "doctor":
		if callerDoctorID == nil {
			return nil, ErrForbidden
		}
		q.AssignedDoctorID = callerDoctorID
	}

	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

func validateCreateCaseCommand(cmd *dentalcase.CreateCaseCommand) error {
	var errs []string

	if strings.TrimSpace(cmd.Title) == "" {
		errs = append(errs, "title is required")
	}
	if cmd.PatientID == uuid.Nil {
		errs = append(errs, "patient_id is required")
	}
	if !cmd.Urgency.IsValid() {
		errs = append(errs, "urgency is invalid")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
