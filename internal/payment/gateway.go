package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
)

var ErrCaptureDeclined = errors.New("payment gateway declined the capture")

// Capture is the confirmation returned by the external gateway. The gateway
// protocol itself is not implemented here; the settlement coordinator only
// consumes this result.
type Capture struct {
	ReferenceID string
	Amount      decimal.Decimal
	Method      ledger.PaymentMethod
}

type Gateway interface {
	// Capture charges the patient through the external provider and returns
	// the capture confirmation. A non-nil error means no money moved.
	Capture(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, method ledger.PaymentMethod) (*Capture, error)
}

// StaticGateway approves every capture and fabricates a reference. It stands
// in for the real provider integration in development and tests.
type StaticGateway struct{}

func NewStaticGateway() *StaticGateway {
	return &StaticGateway{}
}

func (g *StaticGateway) Capture(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, method ledger.PaymentMethod) (*Capture, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrCaptureDeclined)
	}
	return &Capture{
		ReferenceID: fmt.Sprintf("cap_%s", uuid.NewString()[:8]),
		Amount:      amount,
		Method:      method,
	}, nil
}
