package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DoctorSnapshot is the derived financial position of a doctor. It is never
// stored; it is recomputed by folding the doctor's ledger entries in Seq
// order wherever a balance is displayed. This is the only fold
// implementation; nothing else may derive a balance.
type DoctorSnapshot struct {
	// GrossRevenue is treatment income collected by the platform on the
	// doctor's behalf (every method except cash, which the doctor collects
	// directly).
	GrossRevenue decimal.Decimal `json:"gross_revenue"`

	// Commission is the platform's cut accrued across all settlements.
	Commission decimal.Decimal `json:"commission"`

	// CommissionFromCash is the portion of Commission accrued on
	// cash-collected cases, which the doctor owes back to the platform.
	CommissionFromCash decimal.Decimal `json:"commission_from_cash"`

	// NetIncome = GrossRevenue − (Commission − CommissionFromCash):
	// platform-held revenue minus commission already withheld from it.
	NetIncome decimal.Decimal `json:"net_income"`

	// TotalPaid is the sum of payouts already transferred to the doctor.
	TotalPaid decimal.Decimal `json:"total_paid"`

	// PendingBalance = NetIncome − TotalPaid. Never negative under valid
	// entry sequences; a negative value is a reconciliation failure.
	PendingBalance decimal.Decimal `json:"pending_balance"`

	// CommissionPaidByDoctor is cash commission the doctor has remitted.
	CommissionPaidByDoctor decimal.Decimal `json:"commission_paid_by_doctor"`

	// CommissionDue = CommissionFromCash − CommissionPaidByDoctor.
	CommissionDue decimal.Decimal `json:"commission_due"`
}

// DeriveDoctorSnapshot folds a doctor's entries (already in Seq order) into a
// snapshot. Returns ErrLedgerInconsistency when the fold produces a negative
// pending balance; callers must surface that, never clamp it.
func DeriveDoctorSnapshot(entries []*Entry) (*DoctorSnapshot, error) {
	s := &DoctorSnapshot{
		GrossRevenue:           decimal.Zero,
		Commission:             decimal.Zero,
		CommissionFromCash:     decimal.Zero,
		TotalPaid:              decimal.Zero,
		CommissionPaidByDoctor: decimal.Zero,
	}

	for _, e := range entries {
		switch e.Type {
		case TypeTreatmentPayment:
			if e.Method != MethodCash {
				s.GrossRevenue = s.GrossRevenue.Add(e.Amount)
			}
		case TypeCommissionPayment:
			if e.IsRemittance() {
				s.CommissionPaidByDoctor = s.CommissionPaidByDoctor.Add(e.Amount)
				continue
			}
			s.Commission = s.Commission.Add(e.Amount)
			if e.Method == MethodCash {
				s.CommissionFromCash = s.CommissionFromCash.Add(e.Amount)
			}
		case TypePayout:
			s.TotalPaid = s.TotalPaid.Add(e.Amount)
		case TypeAdjustmentBonus:
			s.GrossRevenue = s.GrossRevenue.Add(e.Amount)
		case TypeAdjustmentDeduction:
			s.GrossRevenue = s.GrossRevenue.Sub(e.Amount)
		case TypeRefund:
			if e.Method != MethodCash {
				s.GrossRevenue = s.GrossRevenue.Sub(e.Amount)
			}
		}
	}

	s.NetIncome = s.GrossRevenue.Sub(s.Commission.Sub(s.CommissionFromCash))
	s.PendingBalance = s.NetIncome.Sub(s.TotalPaid)
	s.CommissionDue = s.CommissionFromCash.Sub(s.CommissionPaidByDoctor)

	if s.PendingBalance.IsNegative() {
		return nil, fmt.Errorf("%w: pending balance %s", ErrLedgerInconsistency, s.PendingBalance)
	}

	return s, nil
}

// DeriveWalletBalance folds a patient's entries into their prepaid credit:
// deposits minus wallet-method treatment payments, plus wallet refunds.
func DeriveWalletBalance(entries []*Entry) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		switch e.Type {
		case TypeCreditDeposit:
			balance = balance.Add(e.Amount)
		case TypeTreatmentPayment:
			if e.Method == MethodWallet {
				balance = balance.Sub(e.Amount)
			}
		case TypeRefund:
			if e.Method == MethodWallet {
				balance = balance.Add(e.Amount)
			}
		}
	}
	return balance
}
