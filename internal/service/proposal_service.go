package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
)

type ProposalService struct {
	repo       proposal.Repository
	caseRepo   dentalcase.Repository
	doctorRepo doctor.Repository
	auditSvc   *AuditService
	log        *zap.Logger

	// caseLocks serializes selection per case so two patients' clicks (or a
	// double click) cannot both win.
	caseLocks *keyMutex

	maxConflictRetries int
}

func NewProposalService(
	repo proposal.Repository,
	caseRepo dentalcase.Repository,
	doctorRepo doctor.Repository,
	auditSvc *AuditService,
	log *zap.Logger,
	maxConflictRetries int,
) *ProposalService {
	if maxConflictRetries <= 0 {
		maxConflictRetries = 3
	}
	return &ProposalService{
		repo:               repo,
		caseRepo:           caseRepo,
		doctorRepo:         doctorRepo,
		auditSvc:           auditSvc,
		log:                log,
		caseLocks:          newKeyMutex(),
		maxConflictRetries: maxConflictRetries,
	}
}

func (s *ProposalService) SubmitProposal(ctx context.Context, cmd *proposal.SubmitProposalCommand, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID, ip string) (*proposal.Proposal, error) {
	// Doctors may only submit under their own profile.
	if callerRole == "doctor" {
		if callerDoctorID == nil || *callerDoctorID != cmd.DoctorID {
			return nil, ErrForbidden
		}
	} else if callerRole != "admin" {
		return nil, ErrForbidden
	}

	if cmd.Cost.Sign() <= 0 {
		return nil, proposal.ErrInvalidCost
	}

	// Submission races with selection; hold the case lock so the open to
	// assigned flip below cannot write back over a concurrent accept.
	s.caseLocks.Lock(cmd.CaseID)
	defer s.caseLocks.Unlock(cmd.CaseID)

	c, err := s.caseRepo.GetByID(ctx, cmd.CaseID)
	if err != nil {
		return nil, err
	}
	if !c.AcceptsProposals() {
		return nil, dentalcase.ErrCaseNotOpen
	}
	if !c.IsDoctorAssigned(cmd.DoctorID) {
		return nil, dentalcase.ErrDoctorNotAssigned
	}

	d, err := s.doctorRepo.GetByID(ctx, cmd.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("verifying doctor: %w", err)
	}
	if !d.IsActive() {
		return nil, doctor.ErrDoctorInactive
	}

	exists, err := s.repo.HasPendingForDoctor(ctx, cmd.CaseID, cmd.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("checking existing proposals: %w", err)
	}
	if exists {
		return nil, proposal.ErrDuplicateProposal
	}

	p := &proposal.Proposal{
		CaseID:     cmd.CaseID,
		DoctorID:   cmd.DoctorID,
		DoctorName: d.FullName(),
		Cost:       cmd.Cost,
		Details:    cmd.Details,
		Notes:      cmd.Notes,
		Duration:   cmd.Duration,
		Status:     proposal.StatusPending,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.log.Error("failed to create proposal", zap.Error(err))
		return nil, fmt.Errorf("creating proposal: %w", err)
	}

	// First proposal moves the case from open to assigned. The guarded write
	// refuses stale entities, so a selection landing on another instance in
	// the meantime is never reverted.
	if c.Status == dentalcase.StatusOpen {
		c.Status = dentalcase.StatusAssigned
		if err := s.caseRepo.UpdateStatus(ctx, c, dentalcase.StatusOpen); err != nil {
			s.log.Warn("failed to move case to assigned", zap.Error(err),
				zap.String("case_id", c.ID.String()))
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "proposal", ResourceID: p.ID.String(), IPAddress: ip,
	})

	s.log.Info("proposal submitted",
		zap.String("proposal_id", p.ID.String()),
		zap.String("case_id", cmd.CaseID.String()),
		zap.String("doctor_id", cmd.DoctorID.String()),
		zap.String("cost", cmd.Cost.StringFixed(2)),
	)

	return p, nil
}

// EditProposal mutates a pending proposal. Doctors may edit their own;
// admins any. The prior cost is kept on the record when cost changes.
func (s *ProposalService) EditProposal(ctx context.Context, id uuid.UUID, cmd *proposal.EditProposalCommand, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID, ip string) (*proposal.Proposal, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "doctor" {
		if callerDoctorID == nil || *callerDoctorID != p.DoctorID {
			return nil, ErrForbidden
		}
	} else if callerRole != "admin" {
		return nil, ErrForbidden
	}

	// Edits race with selection; hold the case lock so a proposal cannot
	// change under a concurrent accept.
	s.caseLocks.Lock(p.CaseID)
	defer s.caseLocks.Unlock(p.CaseID)

	p, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyEdit(cmd); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating proposal: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "proposal", ResourceID: id.String(), IPAddress: ip,
	})

	return p, nil
}

// WithdrawProposal lets a doctor cancel their own pending proposal.
func (s *ProposalService) WithdrawProposal(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID, ip string) (*proposal.Proposal, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "doctor" {
		if callerDoctorID == nil || *callerDoctorID != p.DoctorID {
			return nil, ErrForbidden
		}
	} else if callerRole != "admin" {
		return nil, ErrForbidden
	}

	s.caseLocks.Lock(p.CaseID)
	defer s.caseLocks.Unlock(p.CaseID)

	p, err = s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanTransitionTo(proposal.StatusCancelled) {
		return nil, proposal.ErrProposalNotPending
	}
	p.Status = proposal.StatusCancelled
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("withdrawing proposal: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "proposal", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"cancelled"}`,
	})

	return p, nil
}

// DeleteProposal removes a pending proposal. Deleting an accepted proposal
// would orphan its case, so only pending ones can go. Admin only.
func (s *ProposalService) DeleteProposal(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) error {
	if callerRole != "admin" {
		return ErrForbidden
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.caseLocks.Lock(p.CaseID)
	defer s.caseLocks.Unlock(p.CaseID)

	if err := s.repo.DeletePending(ctx, id); err != nil {
		return err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "delete", ResourceType: "proposal", ResourceID: id.String(), IPAddress: ip,
	})

	return nil
}

// CompareProposals ranks the pending proposals for a case by cost, doctor
// rating, doctor experience and submission time. Pure read, safe to cancel.
func (s *ProposalService) CompareProposals(ctx context.Context, caseID uuid.UUID, callerID uuid.UUID, callerRole string) ([]proposal.Comparison, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if callerRole == "patient" && c.PatientID != callerID {
		return nil, ErrForbidden
	}

	all, err := s.repo.ListByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("listing proposals: %w", err)
	}

	var pending []*proposal.Proposal
	doctorIDs := make([]uuid.UUID, 0, len(all))
	for _, p := range all {
		if p.Status == proposal.StatusPending {
			pending = append(pending, p)
			doctorIDs = append(doctorIDs, p.DoctorID)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	doctors, err := s.doctorRepo.GetByIDs(ctx, doctorIDs)
	if err != nil {
		return nil, fmt.Errorf("loading doctors: %w", err)
	}

	comparisons := make([]proposal.Comparison, 0, len(pending))
	for _, p := range pending {
		cmp := proposal.Comparison{Proposal: p}
		if d, ok := doctors[p.DoctorID]; ok {
			cmp.DoctorRating = d.Rating
			cmp.DoctorExperience = d.ExperienceYears
		}
		comparisons = append(comparisons, cmp)
	}

	return proposal.Rank(comparisons), nil
}

// SelectProposal accepts one pending proposal on behalf of the patient and
// rejects every sibling, atomically. Retries a bounded number of times when
// a concurrent selection wins the race first.
func (s *ProposalService) SelectProposal(ctx context.Context, caseID, proposalID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*proposal.Proposal, error) {
	s.caseLocks.Lock(caseID)
	defer s.caseLocks.Unlock(caseID)

	var accepted *proposal.Proposal
	for attempt := 0; attempt < s.maxConflictRetries; attempt++ {
		c, err := s.caseRepo.GetByID(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if callerRole == "patient" && c.PatientID != callerID {
			return nil, ErrForbidden
		}
		if callerRole == "doctor" {
			return nil, ErrForbidden
		}
		if !c.AcceptsProposals() {
			return nil, dentalcase.ErrInvalidStatusTransition
		}

		p, err := s.repo.GetByID(ctx, proposalID)
		if err != nil {
			return nil, err
		}
		if p.CaseID != caseID {
			return nil, proposal.ErrProposalCaseMismatch
		}
		if p.Status != proposal.StatusPending {
			return nil, proposal.ErrProposalNotPending
		}

		accepted, err = s.repo.Accept(ctx, caseID, proposalID, time.Now())
		if err == nil {
			break
		}
		if !errors.Is(err, proposal.ErrSelectionConflict) {
			return nil, err
		}
		s.log.Warn("proposal selection conflict, retrying",
			zap.String("case_id", caseID.String()),
			zap.Int("attempt", attempt+1),
		)
		accepted = nil
	}
	if accepted == nil {
		return nil, proposal.ErrSelectionConflict
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "proposal", ResourceID: proposalID.String(), IPAddress: ip,
		Changes: `{"status":"accepted"}`,
	})

	s.log.Info("proposal selected",
		zap.String("case_id", caseID.String()),
		zap.String("proposal_id", proposalID.String()),
		zap.String("doctor_id", accepted.DoctorID.String()),
	)

	return accepted, nil
}

// CompleteTreatment closes out an in-progress case and its accepted proposal.
func (s *ProposalService) CompleteTreatment(ctx context.Context, caseID uuid.UUID, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID, ip string) (*dentalcase.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if callerRole == "doctor" {
		if callerDoctorID == nil || c.ChosenProposalID == nil {
			return nil, ErrForbidden
		}
		chosen, err := s.repo.GetByID(ctx, *c.ChosenProposalID)
		if err != nil {
			return nil, err
		}
		if chosen.DoctorID != *callerDoctorID {
			return nil, ErrForbidden
		}
	} else if callerRole != "admin" {
		return nil, ErrForbidden
	}

	if !c.CanTransitionTo(dentalcase.StatusCompleted) {
		return nil, dentalcase.ErrInvalidStatusTransition
	}

	prev := c.Status
	c.Status = dentalcase.StatusCompleted
	if err := s.caseRepo.UpdateStatus(ctx, c, prev); err != nil {
		return nil, fmt.Errorf("completing case: %w", err)
	}

	if c.ChosenProposalID != nil {
		p, err := s.repo.GetByID(ctx, *c.ChosenProposalID)
		if err == nil && p.CanTransitionTo(proposal.StatusCompleted) {
			p.Status = proposal.StatusCompleted
			if err := s.repo.Update(ctx, p); err != nil {
				s.log.Warn("failed to complete chosen proposal", zap.Error(err))
			}
		}
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "case", ResourceID: caseID.String(), IPAddress: ip,
		Changes: `{"status":"completed"}`,
	})

	return c, nil
}

func (s *ProposalService) ListProposals(ctx context.Context, q *proposal.ListProposalsQuery, callerID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID) (*proposal.PagedProposals, error) {
	if callerRole == "doctor" {
		if callerDoctorID == nil {
			return nil, ErrForbidden
		}
		q.DoctorID = callerDoctorID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}
