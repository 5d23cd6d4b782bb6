package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/commission"
	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
	"github.com/dentacore/dentaflow/internal/domain/settings"
	"github.com/dentacore/dentaflow/internal/domain/settlement"
	"github.com/dentacore/dentaflow/internal/messaging"
	"github.com/dentacore/dentaflow/internal/payment"
	"github.com/dentacore/dentaflow/pkg/metrics"
)

var (
	ErrPayoutExceedsBalance   = errors.New("payout exceeds pending balance")
	ErrRemittanceExceedsDue   = errors.New("remittance exceeds commission due")
	ErrNothingToRefund        = errors.New("case has no captured payment to refund")
	ErrUnsupportedSpendMethod = errors.New("unsupported payment method for settlement")
)

// SettlementService drives the money side of an accepted proposal: capture,
// commission split, ledger entries, case payment status and the chat-channel
// signal. Once a payment is captured the remaining steps are retried until
// they complete; a captured payment is never dropped.
type SettlementService struct {
	caseRepo       dentalcase.Repository
	proposalRepo   proposal.Repository
	doctorRepo     doctor.Repository
	settingsRepo   settings.Repository
	ledgerRepo     ledger.Repository
	settlementRepo settlement.Repository

	walletSvc *WalletService
	gateway   payment.Gateway
	chat      messaging.Gateway
	auditSvc  *AuditService
	collector *metrics.Collector
	log       *zap.Logger

	// doctorLocks guards payout and remittance writes so a snapshot cannot
	// be spent twice concurrently.
	doctorLocks *keyMutex

	retryInterval time.Duration
}

func NewSettlementService(
	caseRepo dentalcase.Repository,
	proposalRepo proposal.Repository,
	doctorRepo doctor.Repository,
	settingsRepo settings.Repository,
	ledgerRepo ledger.Repository,
	settlementRepo settlement.Repository,
	walletSvc *WalletService,
	gateway payment.Gateway,
	chat messaging.Gateway,
	auditSvc *AuditService,
	collector *metrics.Collector,
	log *zap.Logger,
	retryInterval time.Duration,
) *SettlementService {
	if retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}
	return &SettlementService{
		caseRepo:       caseRepo,
		proposalRepo:   proposalRepo,
		doctorRepo:     doctorRepo,
		settingsRepo:   settingsRepo,
		ledgerRepo:     ledgerRepo,
		settlementRepo: settlementRepo,
		walletSvc:      walletSvc,
		gateway:        gateway,
		chat:           chat,
		auditSvc:       auditSvc,
		collector:      collector,
		log:            log,
		doctorLocks:    newKeyMutex(),
		retryInterval:  retryInterval,
	}
}

// Settle captures payment for a case whose proposal has been accepted and
// books the money movements. The capture itself is the point of no return:
// everything after it is persisted in a pending settlement and re-driven
// until the ledger, the case and the chat signal are all consistent.
func (s *SettlementService) Settle(ctx context.Context, caseID uuid.UUID, method ledger.PaymentMethod, callerID uuid.UUID, callerRole string, ip string) (*settlement.PendingSettlement, error) {
	if !method.IsValid() {
		return nil, ledger.ErrInvalidMethod
	}

	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if callerRole == "patient" && c.PatientID != callerID {
		return nil, ErrForbidden
	}
	if c.PaymentStatus == dentalcase.PaymentPaid {
		return nil, settlement.ErrAlreadySettled
	}
	if c.ChosenProposalID == nil {
		return nil, settlement.ErrNotAccepted
	}

	p, err := s.proposalRepo.GetByID(ctx, *c.ChosenProposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != proposal.StatusAccepted && p.Status != proposal.StatusInProgress {
		return nil, settlement.ErrNotAccepted
	}
	if !c.IsDoctorAssigned(p.DoctorID) {
		return nil, dentalcase.ErrDoctorNotAssigned
	}

	// A settlement may already exist from a crashed earlier attempt; finish
	// that one instead of capturing twice.
	if existing, err := s.settlementRepo.GetByCase(ctx, caseID); err == nil {
		if existing.Status == settlement.StatusInitiated {
			// A prior attempt died between recording the intent and
			// confirming the capture. Whether money moved is unknown, so
			// never re-capture here.
			return nil, settlement.ErrCaptureUnconfirmed
		}
		if completeErr := s.complete(ctx, existing); completeErr != nil {
			return existing, completeErr
		}
		return existing, nil
	} else if !errors.Is(err, settlement.ErrSettlementNotFound) {
		return nil, fmt.Errorf("checking existing settlement: %w", err)
	}

	split, err := s.computeSplit(ctx, p.DoctorID, p.Cost)
	if err != nil {
		return nil, err
	}

	ps := &settlement.PendingSettlement{
		CaseID:     caseID,
		ProposalID: p.ID,
		PatientID:  c.PatientID,
		DoctorID:   p.DoctorID,
		Amount:     p.Cost,
		Commission: split.Commission,
		Method:     method,
		Status:     settlement.StatusInitiated,
	}

	// The intent row goes down before any money moves, so a crash mid-capture
	// leaves evidence on disk and a retried Settle cannot capture the same
	// case twice.
	if err := s.settlementRepo.Create(ctx, ps); err != nil {
		return nil, fmt.Errorf("recording settlement intent: %w", err)
	}

	// Capture. Wallet spends append the patient-side entry themselves;
	// gateway methods return a reference; cash is collected by the doctor
	// outside the platform, so there is nothing to capture.
	switch method {
	case ledger.MethodWallet:
		if _, err := s.walletSvc.Spend(ctx, c.PatientID, p.Cost, caseID); err != nil {
			s.discardIntent(ctx, ps)
			return nil, err
		}
	case ledger.MethodBkash, ledger.MethodBank:
		capture, err := s.gateway.Capture(ctx, c.PatientID, p.Cost, method)
		if err != nil {
			s.collector.SettlementsTotal.WithLabelValues("capture_failed").Inc()
			s.discardIntent(ctx, ps)
			return nil, fmt.Errorf("%w: %v", settlement.ErrCaptureFailed, err)
		}
		ps.GatewayRef = capture.ReferenceID
	case ledger.MethodCash:
		// nothing to capture
	default:
		s.discardIntent(ctx, ps)
		return nil, ErrUnsupportedSpendMethod
	}

	ps.Status = settlement.StatusCaptured
	if err := s.settlementRepo.Update(ctx, ps); err != nil {
		// Money has moved but the row still reads initiated. The worker never
		// re-captures an initiated row, so this needs manual reconciliation.
		s.log.Error("captured payment stuck in initiated settlement",
			zap.Error(err),
			zap.String("case_id", caseID.String()),
			zap.String("gateway_ref", ps.GatewayRef),
		)
		return nil, fmt.Errorf("recording capture: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "settlement", ResourceID: ps.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"amount":"%s","commission":"%s","method":"%s"}`,
			ps.Amount.StringFixed(2), ps.Commission.StringFixed(2), method),
	})

	if err := s.complete(ctx, ps); err != nil {
		// The worker picks it up from here.
		s.log.Warn("settlement deferred to retry worker",
			zap.Error(err),
			zap.String("settlement_id", ps.ID.String()),
		)
		return ps, nil
	}

	return ps, nil
}

// discardIntent removes a settlement intent whose capture never happened, so
// the case can be settled again.
func (s *SettlementService) discardIntent(ctx context.Context, ps *settlement.PendingSettlement) {
	if err := s.settlementRepo.Delete(ctx, ps.ID); err != nil {
		s.log.Error("failed to discard settlement intent",
			zap.Error(err),
			zap.String("settlement_id", ps.ID.String()),
		)
	}
}

// complete idempotently advances a settlement to completed. Safe to call any
// number of times; each stage transition is persisted before the next runs.
func (s *SettlementService) complete(ctx context.Context, ps *settlement.PendingSettlement) error {
	if ps.Status == settlement.StatusCaptured {
		if err := s.writeLedgerEntries(ctx, ps); err != nil {
			return fmt.Errorf("writing ledger entries: %w", err)
		}
		ps.Status = settlement.StatusLedgered
		if err := s.settlementRepo.Update(ctx, ps); err != nil {
			return fmt.Errorf("advancing settlement: %w", err)
		}
	}

	if ps.Status == settlement.StatusLedgered {
		c, err := s.caseRepo.GetByID(ctx, ps.CaseID)
		if err != nil {
			return err
		}
		if c.PaymentStatus != dentalcase.PaymentPaid {
			c.PaymentStatus = dentalcase.PaymentPaid
			if err := s.caseRepo.UpdateStatus(ctx, c, c.Status); err != nil {
				return fmt.Errorf("marking case paid: %w", err)
			}
		}

		// Payment confirms the engagement; treatment is now underway.
		p, err := s.proposalRepo.GetByID(ctx, ps.ProposalID)
		if err != nil {
			return err
		}
		if p.Status == proposal.StatusAccepted {
			p.Status = proposal.StatusInProgress
			if err := s.proposalRepo.Update(ctx, p); err != nil {
				return fmt.Errorf("starting treatment on proposal: %w", err)
			}
		}

		if !ps.ChannelSignalled {
			if err := s.chat.OpenChannel(ctx, ps.CaseID, ps.PatientID, ps.DoctorID); err != nil {
				return fmt.Errorf("signalling chat gateway: %w", err)
			}
			ps.ChannelSignalled = true
			if err := s.settlementRepo.Update(ctx, ps); err != nil {
				return fmt.Errorf("recording channel signal: %w", err)
			}
		}

		now := time.Now()
		ps.Status = settlement.StatusCompleted
		ps.CompletedAt = &now
		if err := s.settlementRepo.Update(ctx, ps); err != nil {
			return fmt.Errorf("completing settlement: %w", err)
		}

		s.collector.SettlementsTotal.WithLabelValues("completed").Inc()
		s.log.Info("settlement completed",
			zap.String("settlement_id", ps.ID.String()),
			zap.String("case_id", ps.CaseID.String()),
			zap.String("amount", ps.Amount.StringFixed(2)),
			zap.String("commission", ps.Commission.StringFixed(2)),
		)
	}

	return nil
}

// writeLedgerEntries books the settlement atomically: treatment revenue and
// commission accrual against the doctor, and for non-wallet methods the
// patient-side payment record (wallet spends already wrote theirs).
func (s *SettlementService) writeLedgerEntries(ctx context.Context, ps *settlement.PendingSettlement) error {
	caseID := ps.CaseID
	batch := []*ledger.Entry{
		{
			SubjectID:  ps.DoctorID,
			Type:       ledger.TypeTreatmentPayment,
			Amount:     ps.Amount,
			Method:     ps.Method,
			CaseID:     &caseID,
			GatewayRef: ps.GatewayRef,
		},
		{
			SubjectID: ps.DoctorID,
			Type:      ledger.TypeCommissionPayment,
			Amount:    ps.Commission,
			Method:    ps.Method,
			CaseID:    &caseID,
		},
	}

	if ps.Method != ledger.MethodWallet {
		batch = append(batch, &ledger.Entry{
			SubjectID:  ps.PatientID,
			Type:       ledger.TypeTreatmentPayment,
			Amount:     ps.Amount,
			Method:     ps.Method,
			CaseID:     &caseID,
			GatewayRef: ps.GatewayRef,
		})
	}

	if err := s.ledgerRepo.AppendAll(ctx, batch); err != nil {
		return err
	}
	for _, e := range batch {
		s.collector.LedgerEntriesTotal.WithLabelValues(string(e.Type)).Inc()
	}
	return nil
}

func (s *SettlementService) computeSplit(ctx context.Context, doctorID uuid.UUID, cost decimal.Decimal) (commission.Split, error) {
	cfg, err := s.commissionConfigFor(ctx, doctorID)
	if err != nil {
		return commission.Split{}, err
	}
	return commission.Compute(cost, cfg)
}

func (s *SettlementService) commissionConfigFor(ctx context.Context, doctorID uuid.UUID) (commission.Config, error) {
	st, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return commission.Config{}, fmt.Errorf("loading billing settings: %w", err)
	}
	d, err := s.doctorRepo.GetByID(ctx, doctorID)
	if err != nil {
		return commission.Config{}, err
	}
	return d.CommissionConfig(st.CommissionConfig()), nil
}

// DoctorSnapshot folds the doctor's ledger into their financial position.
// Doctors may read their own; admins any.
func (s *SettlementService) DoctorSnapshot(ctx context.Context, doctorID uuid.UUID, callerRole string, callerDoctorID *uuid.UUID) (*ledger.DoctorSnapshot, error) {
	if callerRole == "doctor" {
		if callerDoctorID == nil || *callerDoctorID != doctorID {
			return nil, ErrForbidden
		}
	} else if callerRole != "admin" {
		return nil, ErrForbidden
	}

	entries, err := s.ledgerRepo.ListBySubject(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	snapshot, err := ledger.DeriveDoctorSnapshot(entries)
	if err != nil {
		// Inconsistency is fatal: surfaced for manual reconciliation,
		// never auto-corrected.
		s.log.Error("ledger inconsistency",
			zap.Error(err),
			zap.String("doctor_id", doctorID.String()),
		)
		return nil, err
	}
	return snapshot, nil
}

// Payout transfers accumulated net income to the doctor. The lock plus
// re-fold prevents two concurrent payouts from both passing the balance
// check.
func (s *SettlementService) Payout(ctx context.Context, doctorID uuid.UUID, amount decimal.Decimal, method ledger.PaymentMethod, callerID uuid.UUID, callerRole string, ip string) (*ledger.Entry, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}
	if amount.Sign() <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if !method.IsValid() || method == ledger.MethodWallet {
		return nil, ledger.ErrInvalidMethod
	}

	s.doctorLocks.Lock(doctorID)
	defer s.doctorLocks.Unlock(doctorID)

	entries, err := s.ledgerRepo.ListBySubject(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	snapshot, err := ledger.DeriveDoctorSnapshot(entries)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(snapshot.PendingBalance) {
		return nil, fmt.Errorf("%w: pending %s, requested %s",
			ErrPayoutExceedsBalance, snapshot.PendingBalance.StringFixed(2), amount.StringFixed(2))
	}

	e := &ledger.Entry{
		SubjectID: doctorID,
		Type:      ledger.TypePayout,
		Amount:    amount,
		Method:    method,
	}
	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("appending payout: %w", err)
	}

	s.collector.LedgerEntriesTotal.WithLabelValues(string(ledger.TypePayout)).Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "payout", ResourceID: e.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"doctor_id":"%s","amount":"%s"}`, doctorID, amount.StringFixed(2)),
	})

	return e, nil
}

// RecordRemittance books a doctor paying cash-collected commission back to
// the platform.
func (s *SettlementService) RecordRemittance(ctx context.Context, doctorID uuid.UUID, amount decimal.Decimal, method ledger.PaymentMethod, callerID uuid.UUID, callerRole string, ip string) (*ledger.Entry, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}
	if amount.Sign() <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	s.doctorLocks.Lock(doctorID)
	defer s.doctorLocks.Unlock(doctorID)

	entries, err := s.ledgerRepo.ListBySubject(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	snapshot, err := ledger.DeriveDoctorSnapshot(entries)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(snapshot.CommissionDue) {
		return nil, fmt.Errorf("%w: due %s, offered %s",
			ErrRemittanceExceedsDue, snapshot.CommissionDue.StringFixed(2), amount.StringFixed(2))
	}

	e := &ledger.Entry{
		SubjectID: doctorID,
		Type:      ledger.TypeCommissionPayment,
		Amount:    amount,
		Method:    method,
		// No CaseID: this is a remittance, not a settlement accrual.
	}
	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("appending remittance: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "commission_remittance", ResourceID: e.ID.String(), IPAddress: ip,
	})

	return e, nil
}

// RecordAdjustment books an admin correction (bonus or deduction) against a
// subject. The original entries are never touched.
func (s *SettlementService) RecordAdjustment(ctx context.Context, subjectID uuid.UUID, entryType ledger.EntryType, amount decimal.Decimal, notes string, callerID uuid.UUID, callerRole string, ip string) (*ledger.Entry, error) {
	if callerRole != "admin" {
		return nil, ErrForbidden
	}
	if entryType != ledger.TypeAdjustmentBonus && entryType != ledger.TypeAdjustmentDeduction {
		return nil, ledger.ErrInvalidEntryType
	}
	if amount.Sign() <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	e := &ledger.Entry{
		SubjectID: subjectID,
		Type:      entryType,
		Amount:    amount,
		Method:    ledger.MethodBank,
		Notes:     notes,
	}
	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("appending adjustment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "adjustment", ResourceID: e.ID.String(), IPAddress: ip,
	})

	return e, nil
}

// Refund reverses a settled case: offsetting refund entries for patient and
// doctor, payment status back to refunded. The original entries remain.
func (s *SettlementService) Refund(ctx context.Context, caseID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) error {
	if callerRole != "admin" {
		return ErrForbidden
	}

	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return err
	}
	if c.PaymentStatus != dentalcase.PaymentPaid {
		return ErrNothingToRefund
	}

	ps, err := s.settlementRepo.GetByCase(ctx, caseID)
	if err != nil {
		return err
	}

	batch := []*ledger.Entry{
		{
			SubjectID: ps.PatientID,
			Type:      ledger.TypeRefund,
			Amount:    ps.Amount,
			Method:    ps.Method,
			CaseID:    &caseID,
		},
		{
			SubjectID: ps.DoctorID,
			Type:      ledger.TypeRefund,
			Amount:    ps.Amount,
			Method:    ps.Method,
			CaseID:    &caseID,
		},
	}
	if ps.Method == ledger.MethodCash {
		// The platform never held cash money, so there is no revenue to give
		// back; what the refund erases is the doctor's commission debt. A
		// remittance-shaped entry (no case) offsets commissionDue without
		// touching the payable balance.
		batch = append(batch, &ledger.Entry{
			SubjectID: ps.DoctorID,
			Type:      ledger.TypeCommissionPayment,
			Amount:    ps.Commission,
			Method:    ps.Method,
			Notes:     "cash commission waived on refund",
		})
	} else {
		// Offset the commission accrual so the doctor does not eat the
		// platform's share of a refunded case.
		batch = append(batch, &ledger.Entry{
			SubjectID: ps.DoctorID,
			Type:      ledger.TypeAdjustmentBonus,
			Amount:    ps.Commission,
			Method:    ps.Method,
			CaseID:    &caseID,
			Notes:     "commission reversal on refund",
		})
	}
	if err := s.ledgerRepo.AppendAll(ctx, batch); err != nil {
		return fmt.Errorf("appending refund entries: %w", err)
	}

	c.PaymentStatus = dentalcase.PaymentRefunded
	if err := s.caseRepo.UpdateStatus(ctx, c, c.Status); err != nil {
		return fmt.Errorf("marking case refunded: %w", err)
	}

	s.collector.SettlementsTotal.WithLabelValues("refunded").Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "settlement", ResourceID: ps.ID.String(), IPAddress: ip,
		Changes: `{"status":"refunded"}`,
	})

	return nil
}

// RunRetryWorker re-drives incomplete settlements until the context is
// cancelled. A captured payment must eventually reach the ledger; this loop
// is that guarantee.
func (s *SettlementService) RunRetryWorker(ctx context.Context) {
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retryIncomplete(ctx)
		}
	}
}

func (s *SettlementService) retryIncomplete(ctx context.Context) {
	incomplete, err := s.settlementRepo.ListIncomplete(ctx, 50)
	if err != nil {
		s.log.Error("failed to list incomplete settlements", zap.Error(err))
		return
	}
	s.collector.SettlementRetryQueue.Set(float64(len(incomplete)))

	for _, ps := range incomplete {
		if ps.Status == settlement.StatusInitiated {
			s.log.Error("settlement capture unconfirmed, manual reconciliation required",
				zap.String("settlement_id", ps.ID.String()),
				zap.String("case_id", ps.CaseID.String()),
			)
			continue
		}
		ps.Attempts++
		if err := s.settlementRepo.Update(ctx, ps); err != nil {
			s.log.Error("failed to bump settlement attempts", zap.Error(err))
			continue
		}
		if err := s.complete(ctx, ps); err != nil {
			s.log.Warn("settlement retry failed",
				zap.Error(err),
				zap.String("settlement_id", ps.ID.String()),
				zap.Int("attempts", ps.Attempts),
			)
		}
	}
}
