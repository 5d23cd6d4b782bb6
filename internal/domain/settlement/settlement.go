package settlement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
)

var (
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrAlreadySettled     = errors.New("case has already been settled")
	ErrNotAccepted        = errors.New("proposal has not been accepted")
	ErrCaptureFailed      = errors.New("payment capture failed")
	ErrCaptureUnconfirmed = errors.New("settlement capture unconfirmed, manual reconciliation required")
)

// Status tracks how far a settlement has progressed. The intent is recorded
// before capture; once payment is captured the settlement must reach
// completed, and it is retried until it does.
type Status string

const (
	StatusInitiated Status = "initiated" // intent recorded, capture not yet confirmed
	StatusCaptured  Status = "captured"  // money moved, ledger not yet written
	StatusLedgered  Status = "ledgered"  // ledger entries written, case not yet marked paid
	StatusCompleted Status = "completed" // case paid and channel signal emitted
)

// PendingSettlement is the durable record of an in-flight settlement. It
// exists so a crash between payment capture and ledger write never loses a
// captured payment: the retry worker re-drives every non-completed row.
type PendingSettlement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	CaseID     uuid.UUID `gorm:"column:case_id;type:uuid;not null;uniqueIndex"`
	ProposalID uuid.UUID `gorm:"column:proposal_id;type:uuid;not null"`
	PatientID  uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID   uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	Amount     decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Commission decimal.Decimal      `gorm:"column:commission;type:numeric(12,2);not null"`
	Method     ledger.PaymentMethod `gorm:"column:payment_method;type:varchar(20);not null"`
	GatewayRef string               `gorm:"column:gateway_ref;type:varchar(100)"`

	Status   Status `gorm:"column:status;type:varchar(20);not null;default:'captured';index"`
	Attempts int    `gorm:"column:attempts;not null;default:0"`

	// ChannelSignalled flags that the messaging gateway was already notified,
	// so retries never emit the acceptance signal twice.
	ChannelSignalled bool `gorm:"column:channel_signalled;not null;default:false"`

	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (PendingSettlement) TableName() string {
	return "billing.pending_settlements"
}
