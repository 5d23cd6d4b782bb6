package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeRate    = errors.New("commission rate cannot be negative")
	ErrRateOverLimit   = errors.New("percentage commission rate cannot exceed 100")
	ErrInvalidType     = errors.New("invalid commission type")
	ErrNonPositiveCost = errors.New("cost must be positive")
)

type Type string

const (
	TypeFixed      Type = "fixed"
	TypePercentage Type = "percentage"
)

func (t Type) IsValid() bool {
	return t == TypeFixed || t == TypePercentage
}

// Config is a commission configuration: the platform default from settings,
// or a doctor's individual override.
type Config struct {
	Type Type            `json:"type"`
	Rate decimal.Decimal `json:"rate"`
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	if c.Rate.IsNegative() {
		return ErrNegativeRate
	}
	if c.Type == TypePercentage && c.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return ErrRateOverLimit
	}
	return nil
}

// Split is the outcome of applying a commission config to a treatment cost.
type Split struct {
	Commission decimal.Decimal `json:"commission"`
	NetIncome  decimal.Decimal `json:"net_income"`
}

var oneHundred = decimal.NewFromInt(100)

// Compute splits a proposal cost into platform commission and doctor net
// income. Percentage commission is cost×rate/100; fixed commission is the
// rate itself regardless of cost. Amounts are rounded half-up to the
// smallest currency unit (2 decimal places).
func Compute(cost decimal.Decimal, cfg Config) (Split, error) {
	if err := cfg.Validate(); err != nil {
		return Split{}, err
	}
	if cost.Sign() <= 0 {
		return Split{}, ErrNonPositiveCost
	}

	var amount decimal.Decimal
	switch cfg.Type {
	case TypePercentage:
		amount = cost.Mul(cfg.Rate).Div(oneHundred)
	case TypeFixed:
		amount = cfg.Rate
	}

	// Round half-up at the smallest currency unit. decimal.Round rounds
	// half away from zero, which is half-up for the non-negative amounts
	// this can produce.
	amount = amount.Round(2)
	return Split{
		Commission: amount,
		NetIncome:  cost.Sub(amount),
	}, nil
}
