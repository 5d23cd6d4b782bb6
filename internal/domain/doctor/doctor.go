package doctor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentacore/dentaflow/internal/domain/commission"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Doctor struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	FirstName string `gorm:"column:first_name;type:varchar(100);not null"`
	LastName  string `gorm:"column:last_name;type:varchar(100);not null"`
	Specialty string `gorm:"column:specialty;type:varchar(100)"`
	Chamber   string `gorm:"column:chamber;type:text"`

	// Patient-facing ranking inputs used in proposal comparison.
	Rating          decimal.Decimal `gorm:"column:rating;type:numeric(3,2);not null;default:0"`
	ExperienceYears int             `gorm:"column:experience_years;not null;default:0"`

	// Individual commission override. When nil, the platform defaults from
	// billing settings apply.
	CommissionType *commission.Type `gorm:"column:commission_type;type:varchar(20)"`
	CommissionRate *decimal.Decimal `gorm:"column:commission_rate;type:numeric(8,2)"`

	Status Status `gorm:"column:status;type:varchar(20);not null;default:'active';index"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Doctor) TableName() string {
	return "dental.doctors"
}

func (d *Doctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

func (d *Doctor) IsActive() bool {
	return d.Status == StatusActive && d.DeletedAt == nil
}

// CommissionConfig returns the doctor's override when both fields are set,
// otherwise the provided platform default.
func (d *Doctor) CommissionConfig(fallback commission.Config) commission.Config {
	if d.CommissionType != nil && d.CommissionRate != nil {
		return commission.Config{Type: *d.CommissionType, Rate: *d.CommissionRate}
	}
	return fallback
}

type CreateDoctorCommand struct {
	FirstName       string
	LastName        string
	Specialty       string
	Chamber         string
	ExperienceYears int
	CreatedBy       uuid.UUID
}

type UpdateDoctorCommand struct {
	FirstName       *string
	LastName        *string
	Specialty       *string
	Chamber         *string
	Rating          *decimal.Decimal
	ExperienceYears *int
	CommissionType  *commission.Type
	CommissionRate  *decimal.Decimal
	UpdatedBy       uuid.UUID
}
