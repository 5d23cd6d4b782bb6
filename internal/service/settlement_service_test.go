package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
	"github.com/dentacore/dentaflow/internal/domain/doctor"
	"github.com/dentacore/dentaflow/internal/domain/ledger"
	"github.com/dentacore/dentaflow/internal/domain/proposal"
	"github.com/dentacore/dentaflow/internal/domain/settlement"
	"github.com/dentacore/dentaflow/internal/messaging"
	"github.com/dentacore/dentaflow/internal/payment"
	"github.com/dentacore/dentaflow/internal/repository/memory"
	"github.com/dentacore/dentaflow/pkg/metrics"
)

// Prometheus collectors register globally, so the test binary shares one.
var testCollector = metrics.NewCollector("dentaflow_test")

type billingFixture struct {
	svc            *SettlementService
	walletSvc      *WalletService
	caseRepo       *memory.CaseRepository
	proposalRepo   *memory.ProposalRepository
	doctorRepo     *memory.DoctorRepository
	ledgerRepo     *memory.LedgerRepository
	settlementRepo *memory.SettlementRepository
	patientID      uuid.UUID
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	caseRepo := memory.NewCaseRepository()
	proposalRepo := memory.NewProposalRepository(caseRepo)
	doctorRepo := memory.NewDoctorRepository()
	ledgerRepo := memory.NewLedgerRepository()
	settlementRepo := memory.NewSettlementRepository()
	settingsRepo := memory.NewSettingsRepository() // 10% platform default
	auditSvc := NewAuditService(memory.NewAuditRepository(), zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)

	walletSvc := NewWalletService(ledgerRepo, auditSvc, zap.NewNop())
	svc := NewSettlementService(
		caseRepo, proposalRepo, doctorRepo, settingsRepo, ledgerRepo, settlementRepo,
		walletSvc,
		payment.NewStaticGateway(),
		messaging.NewLogGateway(zap.NewNop()),
		auditSvc, testCollector, zap.NewNop(),
		time.Minute,
	)

	return &billingFixture{
		svc:            svc,
		walletSvc:      walletSvc,
		caseRepo:       caseRepo,
		proposalRepo:   proposalRepo,
		doctorRepo:     doctorRepo,
		ledgerRepo:     ledgerRepo,
		settlementRepo: settlementRepo,
		patientID:      uuid.New(),
	}
}

// acceptedCase seeds a case with an accepted proposal, ready to settle.
func (f *billingFixture) acceptedCase(t *testing.T, cost int64) (*dentalcase.Case, *proposal.Proposal, *doctor.Doctor) {
	t.Helper()
	ctx := context.Background()

	d := &doctor.Doctor{FirstName: "R", LastName: "K", Status: doctor.StatusActive}
	if err := f.doctorRepo.Create(ctx, d); err != nil {
		t.Fatalf("creating doctor: %v", err)
	}

	c := &dentalcase.Case{
		PatientID:         f.patientID,
		Title:             "root canal",
		Urgency:           dentalcase.UrgencyNormal,
		Status:            dentalcase.StatusAssigned,
		PaymentStatus:     dentalcase.PaymentUnpaid,
		AssignedDoctorIDs: []uuid.UUID{d.ID},
		CreatedBy:         f.patientID,
	}
	if err := f.caseRepo.Create(ctx, c); err != nil {
		t.Fatalf("creating case: %v", err)
	}

	p := &proposal.Proposal{
		CaseID:     c.ID,
		DoctorID:   d.ID,
		DoctorName: d.FullName(),
		Cost:       decimal.NewFromInt(cost),
		Status:     proposal.StatusPending,
	}
	if err := f.proposalRepo.Create(ctx, p); err != nil {
		t.Fatalf("creating proposal: %v", err)
	}

	accepted, err := f.proposalRepo.Accept(ctx, c.ID, p.ID, time.Now())
	if err != nil {
		t.Fatalf("accepting proposal: %v", err)
	}

	reloaded, _ := f.caseRepo.GetByID(ctx, c.ID)
	return reloaded, accepted, d
}

func TestSettleWalletEndToEnd(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, p, d := f.acceptedCase(t, 500)

	if _, err := f.walletSvc.Deposit(ctx, &DepositCommand{
		PatientID: f.patientID, Amount: decimal.NewFromInt(1000), Method: ledger.MethodBank,
	}, f.patientID, "patient", ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	ps, err := f.svc.Settle(ctx, c.ID, ledger.MethodWallet, f.patientID, "patient", "")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if ps.Status != settlement.StatusCompleted {
		t.Errorf("settlement status = %s, want completed", ps.Status)
	}
	if !ps.ChannelSignalled {
		t.Error("chat channel was not signalled")
	}
	if !ps.Commission.Equal(decimal.NewFromInt(50)) {
		t.Errorf("commission = %s, want 50 (10%% of 500)", ps.Commission)
	}

	balance, _ := f.walletSvc.Balance(ctx, f.patientID, f.patientID, "patient")
	if !balance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("wallet balance = %s, want 500", balance)
	}

	reloaded, _ := f.caseRepo.GetByID(ctx, c.ID)
	if reloaded.PaymentStatus != dentalcase.PaymentPaid {
		t.Errorf("case payment status = %s, want paid", reloaded.PaymentStatus)
	}

	// Payment confirmation kicks off treatment on the chosen proposal.
	chosen, _ := f.proposalRepo.GetByID(ctx, p.ID)
	if chosen.Status != proposal.StatusInProgress {
		t.Errorf("proposal status = %s, want in_progress", chosen.Status)
	}

	snapshot, err := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if err != nil {
		t.Fatalf("DoctorSnapshot: %v", err)
	}
	if !snapshot.GrossRevenue.Equal(decimal.NewFromInt(500)) {
		t.Errorf("gross = %s, want 500", snapshot.GrossRevenue)
	}
	if !snapshot.Commission.Equal(decimal.NewFromInt(50)) {
		t.Errorf("commission = %s, want 50", snapshot.Commission)
	}
	if !snapshot.NetIncome.Equal(decimal.NewFromInt(450)) {
		t.Errorf("net = %s, want 450", snapshot.NetIncome)
	}
	if !snapshot.PendingBalance.Equal(decimal.NewFromInt(450)) {
		t.Errorf("pending = %s, want 450", snapshot.PendingBalance)
	}

	// Settling a paid case again must fail.
	if _, err := f.svc.Settle(ctx, c.ID, ledger.MethodWallet, f.patientID, "patient", ""); !errors.Is(err, settlement.ErrAlreadySettled) {
		t.Errorf("second settle err = %v, want ErrAlreadySettled", err)
	}
}

func TestSettleCashTracksCommissionDue(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, _, d := f.acceptedCase(t, 1000)

	ps, err := f.svc.Settle(ctx, c.ID, ledger.MethodCash, f.patientID, "patient", "")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if ps.Status != settlement.StatusCompleted {
		t.Fatalf("settlement status = %s, want completed", ps.Status)
	}

	snapshot, err := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if err != nil {
		t.Fatalf("DoctorSnapshot: %v", err)
	}

	// Cash never reaches the platform: no gross revenue, but the 10%
	// commission is owed by the doctor.
	if !snapshot.GrossRevenue.IsZero() {
		t.Errorf("gross = %s, want 0 for cash", snapshot.GrossRevenue)
	}
	if !snapshot.CommissionDue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("commission due = %s, want 100", snapshot.CommissionDue)
	}

	// Doctor remits the owed commission.
	if _, err := f.svc.RecordRemittance(ctx, d.ID, decimal.NewFromInt(100), ledger.MethodBank, uuid.New(), "admin", ""); err != nil {
		t.Fatalf("RecordRemittance: %v", err)
	}

	snapshot, _ = f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if !snapshot.CommissionDue.IsZero() {
		t.Errorf("commission due after remittance = %s, want 0", snapshot.CommissionDue)
	}
	if !snapshot.CommissionPaidByDoctor.Equal(decimal.NewFromInt(100)) {
		t.Errorf("commission paid = %s, want 100", snapshot.CommissionPaidByDoctor)
	}

	// Over-remitting is rejected.
	if _, err := f.svc.RecordRemittance(ctx, d.ID, decimal.NewFromInt(1), ledger.MethodBank, uuid.New(), "admin", ""); !errors.Is(err, ErrRemittanceExceedsDue) {
		t.Errorf("over-remit err = %v, want ErrRemittanceExceedsDue", err)
	}
}

func TestSettleGuards(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	// Case without an accepted proposal cannot settle.
	c := &dentalcase.Case{
		PatientID:     f.patientID,
		Title:         "whitening",
		Urgency:       dentalcase.UrgencyLow,
		Status:        dentalcase.StatusOpen,
		PaymentStatus: dentalcase.PaymentUnpaid,
		CreatedBy:     f.patientID,
	}
	if err := f.caseRepo.Create(ctx, c); err != nil {
		t.Fatalf("creating case: %v", err)
	}
	if _, err := f.svc.Settle(ctx, c.ID, ledger.MethodBank, f.patientID, "patient", ""); !errors.Is(err, settlement.ErrNotAccepted) {
		t.Errorf("unaccepted settle err = %v, want ErrNotAccepted", err)
	}

	// Another patient cannot settle someone else's case.
	accepted, _, _ := f.acceptedCase(t, 300)
	if _, err := f.svc.Settle(ctx, accepted.ID, ledger.MethodBank, uuid.New(), "patient", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign settle err = %v, want ErrForbidden", err)
	}
}

func TestSettleWalletInsufficientFundsLeavesNothing(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, _, _ := f.acceptedCase(t, 500)

	_, err := f.svc.Settle(ctx, c.ID, ledger.MethodWallet, f.patientID, "patient", "")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("Settle err = %v, want ErrInsufficientFunds", err)
	}

	if _, err := f.settlementRepo.GetByCase(ctx, c.ID); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Error("failed capture left a settlement record")
	}
	reloaded, _ := f.caseRepo.GetByID(ctx, c.ID)
	if reloaded.PaymentStatus != dentalcase.PaymentUnpaid {
		t.Errorf("payment status = %s, want unpaid", reloaded.PaymentStatus)
	}
}

func TestPayout(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, _, d := f.acceptedCase(t, 1000)

	if _, err := f.svc.Settle(ctx, c.ID, ledger.MethodBkash, f.patientID, "patient", ""); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// Net income is 900; paying out more must fail.
	if _, err := f.svc.Payout(ctx, d.ID, decimal.NewFromInt(901), ledger.MethodBank, uuid.New(), "admin", ""); !errors.Is(err, ErrPayoutExceedsBalance) {
		t.Errorf("over-payout err = %v, want ErrPayoutExceedsBalance", err)
	}

	entry, err := f.svc.Payout(ctx, d.ID, decimal.NewFromInt(600), ledger.MethodBank, uuid.New(), "admin", "")
	if err != nil {
		t.Fatalf("Payout: %v", err)
	}
	if entry.Type != ledger.TypePayout {
		t.Errorf("entry type = %s, want payout", entry.Type)
	}

	snapshot, _ := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if !snapshot.PendingBalance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("pending after payout = %s, want 300", snapshot.PendingBalance)
	}

	// Non-admin cannot pay out.
	if _, err := f.svc.Payout(ctx, d.ID, decimal.NewFromInt(10), ledger.MethodBank, uuid.New(), "doctor", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("doctor payout err = %v, want ErrForbidden", err)
	}
}

func TestRefundReversesSettlement(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, _, d := f.acceptedCase(t, 400)

	if _, err := f.svc.Settle(ctx, c.ID, ledger.MethodBank, f.patientID, "patient", ""); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if err := f.svc.Refund(ctx, c.ID, uuid.New(), "admin", ""); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	reloaded, _ := f.caseRepo.GetByID(ctx, c.ID)
	if reloaded.PaymentStatus != dentalcase.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", reloaded.PaymentStatus)
	}

	// Refund plus commission reversal zeroes the doctor's position.
	snapshot, err := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if err != nil {
		t.Fatalf("DoctorSnapshot: %v", err)
	}
	if !snapshot.PendingBalance.IsZero() {
		t.Errorf("pending after refund = %s, want 0", snapshot.PendingBalance)
	}

	// Refunding twice must fail.
	if err := f.svc.Refund(ctx, c.ID, uuid.New(), "admin", ""); !errors.Is(err, ErrNothingToRefund) {
		t.Errorf("second refund err = %v, want ErrNothingToRefund", err)
	}
}

func TestRefundCashLeavesNoPhantomBalance(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, _, d := f.acceptedCase(t, 1000)

	if _, err := f.svc.Settle(ctx, c.ID, ledger.MethodCash, f.patientID, "patient", ""); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if err := f.svc.Refund(ctx, c.ID, uuid.New(), "admin", ""); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	reloaded, _ := f.caseRepo.GetByID(ctx, c.ID)
	if reloaded.PaymentStatus != dentalcase.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", reloaded.PaymentStatus)
	}

	// The platform never held the cash, so the refund must not manufacture
	// a payable balance; the cash commission is waived instead.
	snapshot, err := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if err != nil {
		t.Fatalf("DoctorSnapshot: %v", err)
	}
	if !snapshot.PendingBalance.IsZero() {
		t.Errorf("pending after cash refund = %s, want 0", snapshot.PendingBalance)
	}
	if !snapshot.CommissionDue.IsZero() {
		t.Errorf("commission due after cash refund = %s, want 0", snapshot.CommissionDue)
	}
	if !snapshot.NetIncome.IsZero() {
		t.Errorf("net income after cash refund = %s, want 0", snapshot.NetIncome)
	}
}

func TestUnconfirmedCaptureIsNeverRedriven(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, p, d := f.acceptedCase(t, 300)

	if _, err := f.walletSvc.Deposit(ctx, &DepositCommand{
		PatientID: f.patientID, Amount: decimal.NewFromInt(300), Method: ledger.MethodBank,
	}, f.patientID, "patient", ""); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// A crash between writing the intent and confirming capture leaves an
	// initiated row. We cannot know whether money moved.
	ps := &settlement.PendingSettlement{
		CaseID:     c.ID,
		ProposalID: p.ID,
		PatientID:  f.patientID,
		DoctorID:   d.ID,
		Amount:     decimal.NewFromInt(300),
		Commission: decimal.NewFromInt(30),
		Method:     ledger.MethodWallet,
		Status:     settlement.StatusInitiated,
	}
	if err := f.settlementRepo.Create(ctx, ps); err != nil {
		t.Fatalf("creating initiated settlement: %v", err)
	}

	// A fresh settle attempt must refuse to capture again.
	if _, err := f.svc.Settle(ctx, c.ID, ledger.MethodWallet, f.patientID, "patient", ""); !errors.Is(err, settlement.ErrCaptureUnconfirmed) {
		t.Fatalf("Settle err = %v, want ErrCaptureUnconfirmed", err)
	}
	balance, _ := f.walletSvc.Balance(ctx, f.patientID, f.patientID, "patient")
	if !balance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("wallet balance = %s, want untouched 300", balance)
	}

	// The retry worker must not redrive it either.
	f.svc.retryIncomplete(ctx)

	stuck, err := f.settlementRepo.GetByCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByCase: %v", err)
	}
	if stuck.Status != settlement.StatusInitiated {
		t.Errorf("status after retry = %s, want initiated", stuck.Status)
	}
	if stuck.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", stuck.Attempts)
	}

	snapshot, _ := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if !snapshot.GrossRevenue.IsZero() {
		t.Errorf("gross = %s, want 0, nothing was ledgered", snapshot.GrossRevenue)
	}
}

func TestRetryWorkerCompletesStalledSettlement(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	c, p, d := f.acceptedCase(t, 200)

	// Simulate a crash after capture: the durable row exists but nothing
	// else happened.
	ps := &settlement.PendingSettlement{
		CaseID:     c.ID,
		ProposalID: p.ID,
		PatientID:  f.patientID,
		DoctorID:   d.ID,
		Amount:     decimal.NewFromInt(200),
		Commission: decimal.NewFromInt(20),
		Method:     ledger.MethodBkash,
		GatewayRef: "cap_stale",
		Status:     settlement.StatusCaptured,
	}
	if err := f.settlementRepo.Create(ctx, ps); err != nil {
		t.Fatalf("creating stalled settlement: %v", err)
	}

	f.svc.retryIncomplete(ctx)

	recovered, err := f.settlementRepo.GetByCase(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByCase: %v", err)
	}
	if recovered.Status != settlement.StatusCompleted {
		t.Errorf("status after retry = %s, want completed", recovered.Status)
	}
	if !recovered.ChannelSignalled {
		t.Error("retry did not signal the chat channel")
	}
	if recovered.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", recovered.Attempts)
	}

	reloaded, _ := f.caseRepo.GetByID(ctx, c.ID)
	if reloaded.PaymentStatus != dentalcase.PaymentPaid {
		t.Errorf("payment status = %s, want paid", reloaded.PaymentStatus)
	}

	snapshot, _ := f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if !snapshot.GrossRevenue.Equal(decimal.NewFromInt(200)) {
		t.Errorf("gross = %s, want 200", snapshot.GrossRevenue)
	}

	// Running the worker again must not double-book anything.
	f.svc.retryIncomplete(ctx)
	snapshot, _ = f.svc.DoctorSnapshot(ctx, d.ID, "admin", nil)
	if !snapshot.GrossRevenue.Equal(decimal.NewFromInt(200)) {
		t.Errorf("gross after second retry = %s, want 200", snapshot.GrossRevenue)
	}
}
