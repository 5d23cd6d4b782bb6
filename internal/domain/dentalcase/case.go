package dentalcase

import (
	"time"

	"github.com/google/uuid"
)

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

// State transitions possibilities:
//
//	draft → pending_review → open → assigned → in_progress → completed
//	draft / pending_review / open / assigned → cancelled
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusOpen          Status = "open"
	StatusAssigned      Status = "assigned"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Case struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`

	Title           string  `gorm:"column:title;type:varchar(255);not null"`
	Description     string  `gorm:"column:description;type:text"`
	TreatmentNeeded string  `gorm:"column:treatment_needed;type:text"`
	Urgency         Urgency `gorm:"column:urgency;type:varchar(20);not null;default:'normal';index"`

	Status        Status        `gorm:"column:status;type:varchar(30);not null;default:'draft';index"`
	PaymentStatus PaymentStatus `gorm:"column:payment_status;type:varchar(20);not null;default:'unpaid';index"`

	// Doctors the admin has invited to propose on this case. Set semantics:
	// AssignDoctor is a no-op for an already-assigned doctor.
	AssignedDoctorIDs []uuid.UUID `gorm:"column:assigned_doctor_ids;serializer:json"`

	// ChosenProposalID, when set, references the single accepted proposal for
	// this case. Set atomically with the proposal acceptance.
	ChosenProposalID *uuid.UUID `gorm:"column:chosen_proposal_id;type:uuid;index"`

	// External image references; storage is not owned by this service.
	Images []string `gorm:"column:images;serializer:json"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Case) TableName() string {
	return "dental.cases"
}

func (c *Case) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusDraft:         {StatusPendingReview, StatusCancelled},
		StatusPendingReview: {StatusOpen, StatusCancelled},
		StatusOpen:          {StatusAssigned, StatusInProgress, StatusCancelled},
		StatusAssigned:      {StatusInProgress, StatusCancelled},
		StatusInProgress:    {StatusCompleted},
		StatusCompleted:     {},
		StatusCancelled:     {},
	}

	for _, s := range allowed[c.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// AcceptsProposals reports whether doctors may submit proposals against the
// case in its current state.
func (c *Case) AcceptsProposals() bool {
	return c.Status == StatusOpen || c.Status == StatusAssigned
}

func (c *Case) IsDoctorAssigned(doctorID uuid.UUID) bool {
	for _, id := range c.AssignedDoctorIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}

func (c *Case) AssignDoctor(doctorID uuid.UUID) {
	if c.IsDoctorAssigned(doctorID) {
		return
	}
	c.AssignedDoctorIDs = append(c.AssignedDoctorIDs, doctorID)
}

func (c *Case) Cancel() error {
	if !c.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	if c.PaymentStatus == PaymentPaid {
		return ErrCaseAlreadyPaid
	}
	c.Status = StatusCancelled
	return nil
}

type CreateCaseCommand struct {
	PatientID       uuid.UUID
	Title           string
	Description     string
	TreatmentNeeded string
	Urgency         Urgency
	Images          []string
	CreatedBy       uuid.UUID
}

type UpdateCaseCommand struct {
	Title           *string
	Description     *string
	TreatmentNeeded *string
	Urgency         *Urgency
	Images          *[]string
	UpdatedBy       uuid.UUID
}

type ListCasesQuery struct {
	PatientID        *uuid.UUID
	AssignedDoctorID *uuid.UUID
	Status           *Status
	Urgency          *Urgency
	PaymentStatus    *PaymentStatus
	Page             int
	PageSize         int
}

type PagedCases struct {
	Cases      []*Case
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
