package proposal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State transitions possibilities:
//
//	pending → accepted | rejected | cancelled
//	accepted → in_progress → completed
//
// rejected, cancelled and completed are terminal and immutable.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Proposal struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	CaseID   uuid.UUID `gorm:"column:case_id;type:uuid;not null;index"`
	DoctorID uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	// Denormalized snapshot taken at submission time so comparison views
	// survive later profile renames.
	DoctorName string `gorm:"column:doctor_name;type:varchar(200);not null"`

	Cost decimal.Decimal `gorm:"column:cost;type:numeric(12,2);not null"`
	// PreviousCost holds the prior value when an edit changes the cost,
	// for audit and comparison display.
	PreviousCost *decimal.Decimal `gorm:"column:previous_cost;type:numeric(12,2)"`

	Details  string `gorm:"column:details;type:text"`
	Notes    string `gorm:"column:notes;type:text"`
	Duration string `gorm:"column:duration;type:varchar(100)"` // e.g. "2 weeks"

	Status     Status     `gorm:"column:status;type:varchar(30);not null;default:'pending';index"`
	AcceptedAt *time.Time `gorm:"column:accepted_at"`
}

func (Proposal) TableName() string {
	return "dental.proposals"
}

func (p *Proposal) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusPending:    {StatusAccepted, StatusRejected, StatusCancelled},
		StatusAccepted:   {StatusInProgress, StatusCompleted},
		StatusInProgress: {StatusCompleted},
		StatusRejected:   {},
		StatusCancelled:  {},
		StatusCompleted:  {},
	}

	for _, s := range allowed[p.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// ApplyEdit mutates cost/details/notes/duration on a pending proposal,
// snapshotting the old cost when it changes.
func (p *Proposal) ApplyEdit(cmd *EditProposalCommand) error {
	if p.Status != StatusPending {
		return ErrProposalNotEditable
	}

	if cmd.Cost != nil && !cmd.Cost.Equal(p.Cost) {
		if cmd.Cost.Sign() <= 0 {
			return ErrInvalidCost
		}
		prev := p.Cost
		p.PreviousCost = &prev
		p.Cost = *cmd.Cost
	}
	if cmd.Details != nil {
		p.Details = *cmd.Details
	}
	if cmd.Notes != nil {
		p.Notes = *cmd.Notes
	}
	if cmd.Duration != nil {
		p.Duration = *cmd.Duration
	}
	return nil
}

type SubmitProposalCommand struct {
	CaseID   uuid.UUID
	DoctorID uuid.UUID
	Cost     decimal.Decimal
	Details  string
	Notes    string
	Duration string
}

type EditProposalCommand struct {
	Cost      *decimal.Decimal
	Details   *string
	Notes     *string
	Duration  *string
	UpdatedBy uuid.UUID
}

type ListProposalsQuery struct {
	CaseID   *uuid.UUID
	DoctorID *uuid.UUID
	Status   *Status
	Page     int
	PageSize int
}

type PagedProposals struct {
	Proposals  []*Proposal
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
