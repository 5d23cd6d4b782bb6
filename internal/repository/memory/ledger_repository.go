// Package memory provides in-memory repository implementations with the same
// error semantics as the postgres ones. Used by service tests and local
// development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
)

type LedgerRepository struct {
	mu      sync.Mutex
	entries []*ledger.Entry
	nextSeq map[uuid.UUID]int64
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{nextSeq: make(map[uuid.UUID]int64)}
}

func (r *LedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(e)
}

func (r *LedgerRepository) AppendAll(ctx context.Context, entries []*ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate the whole batch before writing anything.
	for _, e := range entries {
		if e.IdempotencyKey != nil && r.findByKeyLocked(e.SubjectID, *e.IdempotencyKey) != nil {
			return ledger.ErrDuplicateKey
		}
	}
	for _, e := range entries {
		if err := r.appendLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *LedgerRepository) appendLocked(e *ledger.Entry) error {
	if e.IdempotencyKey != nil && r.findByKeyLocked(e.SubjectID, *e.IdempotencyKey) != nil {
		return ledger.ErrDuplicateKey
	}

	r.nextSeq[e.SubjectID]++
	e.Seq = r.nextSeq[e.SubjectID]
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *LedgerRepository) findByKeyLocked(subjectID uuid.UUID, key string) *ledger.Entry {
	for _, e := range r.entries {
		if e.SubjectID == subjectID && e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return e
		}
	}
	return nil
}

func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, subjectID uuid.UUID, key string) (*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.findByKeyLocked(subjectID, key); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, ledger.ErrEntryNotFound
}

func (r *LedgerRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*ledger.Entry
	for _, e := range r.entries {
		if e.SubjectID == subjectID {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (r *LedgerRepository) Statement(ctx context.Context, subjectID uuid.UUID, page, pageSize int) ([]*ledger.Entry, int64, error) {
	all, _ := r.ListBySubject(ctx, subjectID)
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}
