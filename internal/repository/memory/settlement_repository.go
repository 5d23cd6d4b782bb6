package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentacore/dentaflow/internal/domain/settlement"
)

type SettlementRepository struct {
	mu          sync.Mutex
	settlements map[uuid.UUID]*settlement.PendingSettlement
}

func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{settlements: make(map[uuid.UUID]*settlement.PendingSettlement)}
}

func (r *SettlementRepository) Create(ctx context.Context, s *settlement.PendingSettlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.settlements {
		if existing.CaseID == s.CaseID {
			return settlement.ErrAlreadySettled
		}
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	cp := *s
	r.settlements[s.ID] = &cp
	return nil
}

func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.PendingSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.settlements[id]
	if !ok {
		return nil, settlement.ErrSettlementNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SettlementRepository) GetByCase(ctx context.Context, caseID uuid.UUID) (*settlement.PendingSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.settlements {
		if s.CaseID == caseID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, settlement.ErrSettlementNotFound
}

func (r *SettlementRepository) Update(ctx context.Context, s *settlement.PendingSettlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.settlements[s.ID]
	if !ok {
		return settlement.ErrSettlementNotFound
	}

	stored.Status = s.Status
	stored.Attempts = s.Attempts
	stored.GatewayRef = s.GatewayRef
	stored.ChannelSignalled = s.ChannelSignalled
	stored.CompletedAt = s.CompletedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *SettlementRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.settlements[id]; !ok {
		return settlement.ErrSettlementNotFound
	}
	delete(r.settlements, id)
	return nil
}

func (r *SettlementRepository) ListIncomplete(ctx context.Context, limit int) ([]*settlement.PendingSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*settlement.PendingSettlement
	for _, s := range r.settlements {
		if s.Status != settlement.StatusCompleted {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
