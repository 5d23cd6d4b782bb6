package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	TypeCreditDeposit       EntryType = "credit_deposit"
	TypeTreatmentPayment    EntryType = "treatment_payment"
	TypePayout              EntryType = "payout"
	TypeAdjustmentBonus     EntryType = "adjustment_bonus"
	TypeAdjustmentDeduction EntryType = "adjustment_deduction"
	TypeRefund              EntryType = "refund"
	TypeCommissionPayment   EntryType = "commission_payment"
)

func (t EntryType) IsValid() bool {
	switch t {
	case TypeCreditDeposit, TypeTreatmentPayment, TypePayout,
		TypeAdjustmentBonus, TypeAdjustmentDeduction, TypeRefund,
		TypeCommissionPayment:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodWallet PaymentMethod = "wallet"
	MethodBkash  PaymentMethod = "bkash"
	MethodBank   PaymentMethod = "bank"
	MethodCash   PaymentMethod = "cash"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodWallet, MethodBkash, MethodBank, MethodCash:
		return true
	}
	return false
}

// Entry is an immutable record of a monetary movement. Entries are never
// updated or deleted; corrections are written as new offsetting entries
// (refund / adjustment types).
//
// Commission entries carry the payment method of the originating treatment
// payment, so the fold can tell cash-collected commission (owed by the
// doctor) from commission already withheld on online payments. A commission
// entry with a nil CaseID is a remittance: the doctor paying accumulated
// cash commission back to the platform.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	// SubjectID is the user or doctor this entry is booked against.
	SubjectID uuid.UUID `gorm:"column:subject_id;type:uuid;not null;uniqueIndex:idx_ledger_subject_seq,priority:1"`

	// Seq totally orders a subject's entries. Wall clock alone is not enough:
	// two entries may share a timestamp. Assigned by the repository at append
	// time; folds iterate in Seq order.
	Seq int64 `gorm:"column:seq;not null;uniqueIndex:idx_ledger_subject_seq,priority:2"`

	Type   EntryType       `gorm:"column:type;type:varchar(30);not null;index"`
	Amount decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`

	CaseID *uuid.UUID    `gorm:"column:case_id;type:uuid;index"`
	Method PaymentMethod `gorm:"column:payment_method;type:varchar(20);not null"`

	// GatewayRef is the external capture reference for gateway payments.
	GatewayRef string `gorm:"column:gateway_ref;type:varchar(100)"`

	// IdempotencyKey deduplicates client retries of deposits. Nullable;
	// Postgres treats NULLs as distinct so only keyed entries are constrained.
	IdempotencyKey *string `gorm:"column:idempotency_key;type:varchar(100);uniqueIndex:idx_ledger_idem_key"`

	Notes string `gorm:"column:notes;type:text"`
}

func (Entry) TableName() string {
	return "billing.transactions"
}

// IsRemittance reports whether a commission entry records the doctor paying
// cash-collected commission back to the platform rather than a settlement
// accrual.
func (e *Entry) IsRemittance() bool {
	return e.Type == TypeCommissionPayment && e.CaseID == nil
}
