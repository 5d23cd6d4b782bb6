package settings

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/commission"
)

var ErrSettingsNotFound = errors.New("billing settings not found")

// Settings is the single-row table of platform-wide billing defaults.
type Settings struct {
	ID        int       `gorm:"primaryKey"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	CommissionType commission.Type `gorm:"column:commission_type;type:varchar(20);not null;default:'percentage'"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(8,2);not null;default:0"`

	MonthlyFee           decimal.Decimal `gorm:"column:monthly_fee;type:numeric(12,2);not null;default:0"`
	PremiumVisibilityFee decimal.Decimal `gorm:"column:premium_visibility_fee;type:numeric(12,2);not null;default:0"`
}

func (Settings) TableName() string {
	return "billing.settings"
}

func (s *Settings) CommissionConfig() commission.Config {
	return commission.Config{Type: s.CommissionType, Rate: s.CommissionRate}
}

// Defaults returns the seed row used when no settings exist yet.
func Defaults() Settings {
	return Settings{
		ID:             1,
		CommissionType: commission.TypePercentage,
		CommissionRate: decimal.NewFromInt(10),
		MonthlyFee:     decimal.NewFromInt(1000),
	}
}

type UpdateSettingsCommand struct {
	CommissionType       *commission.Type
	CommissionRate       *decimal.Decimal
	MonthlyFee           *decimal.Decimal
	PremiumVisibilityFee *decimal.Decimal
}

type Repository interface {
	// Get returns the current settings row, or ErrSettingsNotFound before
	// the seed has run.
	Get(ctx context.Context) (*Settings, error)

	Update(ctx context.Context, cmd *UpdateSettingsCommand) (*Settings, error)
}
