package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func entry(t EntryType, amount string, method PaymentMethod, caseID *uuid.UUID) *Entry {
	return &Entry{
		ID:        uuid.New(),
		SubjectID: uuid.Nil,
		Type:      t,
		Amount:    decimal.RequireFromString(amount),
		Method:    method,
		CaseID:    caseID,
	}
}

func TestDeriveDoctorSnapshot(t *testing.T) {
	caseA := uuid.New()
	caseB := uuid.New()
	caseC := uuid.New()

	entries := []*Entry{
		// online case: platform holds 4500, withholds 450 commission
		entry(TypeTreatmentPayment, "4500", MethodBkash, &caseA),
		entry(TypeCommissionPayment, "450", MethodBkash, &caseA),
		// wallet case: 1000 revenue, 100 commission
		entry(TypeTreatmentPayment, "1000", MethodWallet, &caseB),
		entry(TypeCommissionPayment, "100", MethodWallet, &caseB),
		// cash case: doctor collected 2000 directly, owes 200 commission
		entry(TypeTreatmentPayment, "2000", MethodCash, &caseC),
		entry(TypeCommissionPayment, "200", MethodCash, &caseC),
		// doctor remits 150 of the cash commission (no case reference)
		entry(TypeCommissionPayment, "150", MethodBank, nil),
		// one payout already made
		entry(TypePayout, "3000", MethodBank, nil),
	}

	s, err := DeriveDoctorSnapshot(entries)
	if err != nil {
		t.Fatalf("DeriveDoctorSnapshot() error = %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"grossRevenue", s.GrossRevenue, "5500"},       // cash excluded
		{"commission", s.Commission, "750"},            // all accruals
		{"commissionFromCash", s.CommissionFromCash, "200"},
		{"netIncome", s.NetIncome, "4950"},             // 5500 - (750-200)
		{"totalPaid", s.TotalPaid, "3000"},
		{"pendingBalance", s.PendingBalance, "1950"},
		{"commissionPaidByDoctor", s.CommissionPaidByDoctor, "150"},
		{"commissionDue", s.CommissionDue, "50"},
	}

	for _, c := range checks {
		if !c.got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestDeriveDoctorSnapshotEmptyLedger(t *testing.T) {
	s, err := DeriveDoctorSnapshot(nil)
	if err != nil {
		t.Fatalf("DeriveDoctorSnapshot() error = %v", err)
	}
	if !s.PendingBalance.IsZero() || !s.NetIncome.IsZero() || !s.CommissionDue.IsZero() {
		t.Errorf("empty ledger should derive all-zero snapshot, got %+v", s)
	}
}

func TestDeriveDoctorSnapshotInconsistency(t *testing.T) {
	caseA := uuid.New()
	entries := []*Entry{
		entry(TypeTreatmentPayment, "1000", MethodBank, &caseA),
		entry(TypeCommissionPayment, "100", MethodBank, &caseA),
		// payout exceeds net income: reconciliation failure
		entry(TypePayout, "2000", MethodBank, nil),
	}

	_, err := DeriveDoctorSnapshot(entries)
	if !errors.Is(err, ErrLedgerInconsistency) {
		t.Fatalf("DeriveDoctorSnapshot() error = %v, want ErrLedgerInconsistency", err)
	}
}

func TestDeriveWalletBalance(t *testing.T) {
	caseA := uuid.New()
	tests := []struct {
		name    string
		entries []*Entry
		want    string
	}{
		{
			name: "deposits minus wallet spends",
			entries: []*Entry{
				entry(TypeCreditDeposit, "500", MethodBkash, nil),
				entry(TypeCreditDeposit, "250.50", MethodBank, nil),
				entry(TypeTreatmentPayment, "300", MethodWallet, &caseA),
			},
			want: "450.50",
		},
		{
			name: "non-wallet payments do not touch the balance",
			entries: []*Entry{
				entry(TypeCreditDeposit, "100", MethodBkash, nil),
				entry(TypeTreatmentPayment, "4500", MethodBkash, &caseA),
			},
			want: "100",
		},
		{
			name: "wallet refund restores credit",
			entries: []*Entry{
				entry(TypeCreditDeposit, "400", MethodBank, nil),
				entry(TypeTreatmentPayment, "400", MethodWallet, &caseA),
				entry(TypeRefund, "400", MethodWallet, &caseA),
			},
			want: "400",
		},
		{
			name:    "empty ledger",
			entries: nil,
			want:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveWalletBalance(tt.entries)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("DeriveWalletBalance() = %s, want %s", got, tt.want)
			}
		})
	}
}
