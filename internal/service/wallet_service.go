package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
)

type WalletService struct {
	ledgerRepo ledger.Repository
	auditSvc   *AuditService
	log        *zap.Logger

	// patientLocks serializes the check-then-append in Spend so two
	// concurrent spends cannot both pass the balance check.
	patientLocks *keyMutex
}

func NewWalletService(ledgerRepo ledger.Repository, auditSvc *AuditService, log *zap.Logger) *WalletService {
	return &WalletService{
		ledgerRepo:   ledgerRepo,
		auditSvc:     auditSvc,
		log:          log,
		patientLocks: newKeyMutex(),
	}
}

type DepositCommand struct {
	PatientID      uuid.UUID
	Amount         decimal.Decimal
	Method         ledger.PaymentMethod
	IdempotencyKey string
	Notes          string
}

// Deposit credits a patient's wallet and returns the new balance. A repeated
// idempotency key returns the balance unchanged instead of double-crediting.
func (s *WalletService) Deposit(ctx context.Context, cmd *DepositCommand, callerID uuid.UUID, callerRole string, ip string) (decimal.Decimal, error) {
	if cmd.Amount.Sign() <= 0 {
		return decimal.Zero, ledger.ErrInvalidAmount
	}
	if !cmd.Method.IsValid() || cmd.Method == ledger.MethodWallet {
		return decimal.Zero, ledger.ErrInvalidMethod
	}
	if callerRole == "patient" && cmd.PatientID != callerID {
		return decimal.Zero, ErrForbidden
	}

	s.patientLocks.Lock(cmd.PatientID)
	defer s.patientLocks.Unlock(cmd.PatientID)

	if cmd.IdempotencyKey != "" {
		existing, err := s.ledgerRepo.GetByIdempotencyKey(ctx, cmd.PatientID, cmd.IdempotencyKey)
		if err == nil && existing != nil {
			s.log.Info("duplicate deposit suppressed",
				zap.String("patient_id", cmd.PatientID.String()),
				zap.String("idempotency_key", cmd.IdempotencyKey),
			)
			return s.Balance(ctx, cmd.PatientID, callerID, callerRole)
		}
		if err != nil && !errors.Is(err, ledger.ErrEntryNotFound) {
			return decimal.Zero, fmt.Errorf("checking idempotency key: %w", err)
		}
	}

	e := &ledger.Entry{
		SubjectID: cmd.PatientID,
		Type:      ledger.TypeCreditDeposit,
		Amount:    cmd.Amount,
		Method:    cmd.Method,
		Notes:     cmd.Notes,
	}
	if cmd.IdempotencyKey != "" {
		key := cmd.IdempotencyKey
		e.IdempotencyKey = &key
	}

	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		if errors.Is(err, ledger.ErrDuplicateKey) {
			return s.Balance(ctx, cmd.PatientID, callerID, callerRole)
		}
		s.log.Error("failed to append deposit", zap.Error(err))
		return decimal.Zero, fmt.Errorf("appending deposit: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "wallet_deposit", ResourceID: e.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"amount":"%s","method":"%s"}`, cmd.Amount.StringFixed(2), cmd.Method),
	})

	entries, err := s.ledgerRepo.ListBySubject(ctx, cmd.PatientID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reloading ledger: %w", err)
	}
	return ledger.DeriveWalletBalance(entries), nil
}

// Spend debits the wallet for a case payment. The balance check and the
// append run under the patient's lock; overdrafts are rejected, never
// clamped into negative balances.
func (s *WalletService) Spend(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, caseID uuid.UUID) (*ledger.Entry, error) {
	if amount.Sign() <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	s.patientLocks.Lock(patientID)
	defer s.patientLocks.Unlock(patientID)

	entries, err := s.ledgerRepo.ListBySubject(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	balance := ledger.DeriveWalletBalance(entries)
	if amount.GreaterThan(balance) {
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			ledger.ErrInsufficientFunds, balance.StringFixed(2), amount.StringFixed(2))
	}

	e := &ledger.Entry{
		SubjectID: patientID,
		Type:      ledger.TypeTreatmentPayment,
		Amount:    amount,
		Method:    ledger.MethodWallet,
		CaseID:    &caseID,
	}
	if err := s.ledgerRepo.Append(ctx, e); err != nil {
		s.log.Error("failed to append wallet spend", zap.Error(err))
		return nil, fmt.Errorf("appending spend: %w", err)
	}

	s.log.Info("wallet spend",
		zap.String("patient_id", patientID.String()),
		zap.String("case_id", caseID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)

	return e, nil
}

func (s *WalletService) Balance(ctx context.Context, patientID uuid.UUID, callerID uuid.UUID, callerRole string) (decimal.Decimal, error) {
	if callerRole == "patient" && patientID != callerID {
		return decimal.Zero, ErrForbidden
	}

	entries, err := s.ledgerRepo.ListBySubject(ctx, patientID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("loading ledger: %w", err)
	}
	return ledger.DeriveWalletBalance(entries), nil
}

// Statement returns a patient's ledger entries newest-first.
func (s *WalletService) Statement(ctx context.Context, patientID uuid.UUID, page, pageSize int, callerID uuid.UUID, callerRole string) ([]*ledger.Entry, int64, error) {
	if callerRole == "patient" && patientID != callerID {
		return nil, 0, ErrForbidden
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	return s.ledgerRepo.Statement(ctx, patientID, page, pageSize)
}
