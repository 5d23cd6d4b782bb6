package memory

import (
	"context"
	"sync"

	"github.com/dentacore/dentaflow/internal/domain"
)

type AuditRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

// Entries returns a copy of everything recorded, for test assertions.
func (r *AuditRepository) Entries() []*domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.AuditLog, len(r.entries))
	copy(out, r.entries)
	return out
}
