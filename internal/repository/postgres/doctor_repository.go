package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentacore/dentaflow/internal/domain/doctor"
)

type DoctorRepository struct {
	db *gorm.DB
}

func NewDoctorRepository(db *gorm.DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

func (r *DoctorRepository) Create(ctx context.Context, d *doctor.Doctor) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	var d doctor.Doctor
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, doctor.ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DoctorRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*doctor.Doctor, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*doctor.Doctor{}, nil
	}

	var doctors []*doctor.Doctor
	err := r.db.WithContext(ctx).
		Where("id IN ? AND deleted_at IS NULL", ids).
		Find(&doctors).Error
	if err != nil {
		return nil, err
	}

	result := make(map[uuid.UUID]*doctor.Doctor, len(doctors))
	for _, d := range doctors {
		result[d.ID] = d
	}
	return result, nil
}

func (r *DoctorRepository) Update(ctx context.Context, id uuid.UUID, cmd *doctor.UpdateDoctorCommand) (*doctor.Doctor, error) {
	updates := map[string]any{}
	if cmd.FirstName != nil {
		updates["first_name"] = *cmd.FirstName
	}
	if cmd.LastName != nil {
		updates["last_name"] = *cmd.LastName
	}
	if cmd.Specialty != nil {
		updates["specialty"] = *cmd.Specialty
	}
	if cmd.Chamber != nil {
		updates["chamber"] = *cmd.Chamber
	}
	if cmd.Rating != nil {
		updates["rating"] = *cmd.Rating
	}
	if cmd.ExperienceYears != nil {
		updates["experience_years"] = *cmd.ExperienceYears
	}
	if cmd.CommissionType != nil {
		updates["commission_type"] = *cmd.CommissionType
	}
	if cmd.CommissionRate != nil {
		updates["commission_rate"] = *cmd.CommissionRate
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).
			Model(&doctor.Doctor{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, doctor.ErrDoctorNotFound
		}
	}

	return r.GetByID(ctx, id)
}

func (r *DoctorRepository) List(ctx context.Context, page, pageSize int) ([]*doctor.Doctor, int64, error) {
	q := r.db.WithContext(ctx).Model(&doctor.Doctor{}).Where("deleted_at IS NULL")

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var doctors []*doctor.Doctor
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&doctors).Error
	if err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}
