package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/dentacore/dentaflow/internal/domain/ledger"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendOne(tx, e)
	})
}

func (r *LedgerRepository) AppendAll(ctx context.Context, entries []*ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := appendOne(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// appendOne assigns the subject's next Seq and inserts. The unique index on
// (subject_id, seq) backstops the assignment; callers serialize per subject
// so a collision indicates a bug, not a race to absorb.
func appendOne(tx *gorm.DB, e *ledger.Entry) error {
	var maxSeq int64
	err := tx.Model(&ledger.Entry{}).
		Where("subject_id = ?", e.SubjectID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return fmt.Errorf("reading max seq: %w", err)
	}
	e.Seq = maxSeq + 1

	if err := tx.Create(e).Error; err != nil {
		if isUniqueViolation(err, "idx_ledger_idem_key") {
			return ledger.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, subjectID uuid.UUID, key string) (*ledger.Entry, error) {
	var e ledger.Entry
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND idempotency_key = ?", subjectID, key).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("seq ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *LedgerRepository) Statement(ctx context.Context, subjectID uuid.UUID, page, pageSize int) ([]*ledger.Entry, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&ledger.Entry{}).Where("subject_id = ?", subjectID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*ledger.Entry
	err := q.Order("seq DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
