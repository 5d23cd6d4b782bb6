package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/repository/memory"
)

func newWalletFixture(t *testing.T) (*WalletService, *memory.LedgerRepository) {
	t.Helper()
	ledgerRepo := memory.NewLedgerRepository()
	auditSvc := NewAuditService(memory.NewAuditRepository(), zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)
	return NewWalletService(ledgerRepo, auditSvc, zap.NewNop()), ledgerRepo
}

func TestDepositCreditsBalance(t *testing.T) {
	svc, _ := newWalletFixture(t)
	patientID := uuid.New()

	balance, err := svc.Deposit(context.Background(), &DepositCommand{
		PatientID: patientID,
		Amount:    decimal.NewFromInt(500),
		Method:    ledger.MethodBkash,
	}, patientID, "patient", "127.0.0.1")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500", balance)
	}
}

func TestDepositValidation(t *testing.T) {
	svc, _ := newWalletFixture(t)
	patientID := uuid.New()

	tests := []struct {
		name    string
		cmd     *DepositCommand
		caller  uuid.UUID
		wantErr error
	}{
		{
			name:    "zero amount",
			cmd:     &DepositCommand{PatientID: patientID, Amount: decimal.Zero, Method: ledger.MethodBank},
			caller:  patientID,
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			cmd:     &DepositCommand{PatientID: patientID, Amount: decimal.NewFromInt(-10), Method: ledger.MethodBank},
			caller:  patientID,
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name:    "wallet cannot fund itself",
			cmd:     &DepositCommand{PatientID: patientID, Amount: decimal.NewFromInt(10), Method: ledger.MethodWallet},
			caller:  patientID,
			wantErr: ledger.ErrInvalidMethod,
		},
		{
			name:    "other patient's wallet",
			cmd:     &DepositCommand{PatientID: patientID, Amount: decimal.NewFromInt(10), Method: ledger.MethodBank},
			caller:  uuid.New(),
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Deposit(context.Background(), tt.cmd, tt.caller, "patient", "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Deposit err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDepositIdempotency(t *testing.T) {
	svc, _ := newWalletFixture(t)
	patientID := uuid.New()

	cmd := &DepositCommand{
		PatientID:      patientID,
		Amount:         decimal.NewFromInt(300),
		Method:         ledger.MethodBank,
		IdempotencyKey: "dep-42",
	}

	if _, err := svc.Deposit(context.Background(), cmd, patientID, "patient", ""); err != nil {
		t.Fatalf("first Deposit: %v", err)
	}

	// Retrying with the same key must not double-credit.
	balance, err := svc.Deposit(context.Background(), cmd, patientID, "patient", "")
	if err != nil {
		t.Fatalf("retried Deposit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("balance after retry = %s, want 300", balance)
	}

	// A different key credits again.
	cmd.IdempotencyKey = "dep-43"
	balance, err = svc.Deposit(context.Background(), cmd, patientID, "patient", "")
	if err != nil {
		t.Fatalf("second Deposit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("balance = %s, want 600", balance)
	}
}

func TestSpendDebitsBalance(t *testing.T) {
	svc, _ := newWalletFixture(t)
	patientID := uuid.New()
	caseID := uuid.New()

	if _, err := svc.Deposit(context.Background(), &DepositCommand{
		PatientID: patientID, Amount: decimal.NewFromInt(1000), Method: ledger.MethodBank,
	}, patientID, "patient", ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	entry, err := svc.Spend(context.Background(), patientID, decimal.NewFromInt(600), caseID)
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if entry.Type != ledger.TypeTreatmentPayment || entry.Method != ledger.MethodWallet {
		t.Errorf("entry = %s/%s, want treatment_payment/wallet", entry.Type, entry.Method)
	}

	balance, err := svc.Balance(context.Background(), patientID, patientID, "patient")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("balance = %s, want 400", balance)
	}
}

func TestSpendInsufficientFundsWritesNothing(t *testing.T) {
	svc, ledgerRepo := newWalletFixture(t)
	patientID := uuid.New()

	if _, err := svc.Deposit(context.Background(), &DepositCommand{
		PatientID: patientID, Amount: decimal.NewFromInt(100), Method: ledger.MethodBank,
	}, patientID, "patient", ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	_, err := svc.Spend(context.Background(), patientID, decimal.NewFromInt(150), uuid.New())
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Spend err = %v, want ErrInsufficientFunds", err)
	}

	entries, err := ledgerRepo.ListBySubject(context.Background(), patientID)
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ledger has %d entries after rejected spend, want 1", len(entries))
	}

	balance, _ := svc.Balance(context.Background(), patientID, patientID, "patient")
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", balance)
	}
}
