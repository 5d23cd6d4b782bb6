package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentacore/dentaflow/internal/domain/dentalcase"
)

type CaseRepository struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*dentalcase.Case
}

func NewCaseRepository() *CaseRepository {
	return &CaseRepository{cases: make(map[uuid.UUID]*dentalcase.Case)}
}

func (r *CaseRepository) Create(ctx context.Context, c *dentalcase.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*dentalcase.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[id]
	if !ok || c.DeletedAt != nil {
		return nil, dentalcase.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CaseRepository) Update(ctx context.Context, id uuid.UUID, cmd *dentalcase.UpdateCaseCommand) (*dentalcase.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[id]
	if !ok || c.DeletedAt != nil {
		return nil, dentalcase.ErrCaseNotFound
	}

	if cmd.Title != nil {
		c.Title = *cmd.Title
	}
	if cmd.Description != nil {
		c.Description = *cmd.Description
	}
	if cmd.TreatmentNeeded != nil {
		c.TreatmentNeeded = *cmd.TreatmentNeeded
	}
	if cmd.Urgency != nil {
		c.Urgency = *cmd.Urgency
	}
	if cmd.Images != nil {
		c.Images = *cmd.Images
	}
	c.UpdatedAt = time.Now()

	cp := *c
	return &cp, nil
}

func (r *CaseRepository) UpdateStatus(ctx context.Context, c *dentalcase.Case, expected dentalcase.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.cases[c.ID]
	if !ok || stored.DeletedAt != nil {
		return dentalcase.ErrCaseNotFound
	}
	if stored.Status != expected {
		return dentalcase.ErrCaseModified
	}

	stored.Status = c.Status
	stored.PaymentStatus = c.PaymentStatus
	stored.AssignedDoctorIDs = append([]uuid.UUID(nil), c.AssignedDoctorIDs...)
	stored.ChosenProposalID = c.ChosenProposalID
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *CaseRepository) List(ctx context.Context, q *dentalcase.ListCasesQuery) (*dentalcase.PagedCases, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*dentalcase.Case
	for _, c := range r.cases {
		if c.DeletedAt != nil {
			continue
		}
		if q.PatientID != nil && c.PatientID != *q.PatientID {
			continue
		}
		if q.AssignedDoctorID != nil && !c.IsDoctorAssigned(*q.AssignedDoctorID) {
			continue
		}
		if q.Status != nil && c.Status != *q.Status {
			continue
		}
		if q.Urgency != nil && c.Urgency != *q.Urgency {
			continue
		}
		if q.PaymentStatus != nil && c.PaymentStatus != *q.PaymentStatus {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (q.Page - 1) * q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &dentalcase.PagedCases{
		Cases:      matched[start:end],
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	}, nil
}
