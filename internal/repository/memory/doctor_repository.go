package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentacore/dentaflow/internal/domain/doctor"
)

type DoctorRepository struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*doctor.Doctor
}

func NewDoctorRepository() *DoctorRepository {
	return &DoctorRepository{doctors: make(map[uuid.UUID]*doctor.Doctor)}
}

func (r *DoctorRepository) Create(ctx context.Context, d *doctor.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.Status == "" {
		d.Status = doctor.StatusActive
	}
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *DoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok || d.DeletedAt != nil {
		return nil, doctor.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *DoctorRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*doctor.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[uuid.UUID]*doctor.Doctor, len(ids))
	for _, id := range ids {
		if d, ok := r.doctors[id]; ok && d.DeletedAt == nil {
			cp := *d
			result[id] = &cp
		}
	}
	return result, nil
}

func (r *DoctorRepository) Update(ctx context.Context, id uuid.UUID, cmd *doctor.UpdateDoctorCommand) (*doctor.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok || d.DeletedAt != nil {
		return nil, doctor.ErrDoctorNotFound
	}

	if cmd.FirstName != nil {
		d.FirstName = *cmd.FirstName
	}
	if cmd.LastName != nil {
		d.LastName = *cmd.LastName
	}
	if cmd.Specialty != nil {
		d.Specialty = *cmd.Specialty
	}
	if cmd.Chamber != nil {
		d.Chamber = *cmd.Chamber
	}
	if cmd.Rating != nil {
		d.Rating = *cmd.Rating
	}
	if cmd.ExperienceYears != nil {
		d.ExperienceYears = *cmd.ExperienceYears
	}
	if cmd.CommissionType != nil {
		d.CommissionType = cmd.CommissionType
	}
	if cmd.CommissionRate != nil {
		d.CommissionRate = cmd.CommissionRate
	}
	d.UpdatedAt = time.Now()

	cp := *d
	return &cp, nil
}

func (r *DoctorRepository) List(ctx context.Context, page, pageSize int) ([]*doctor.Doctor, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*doctor.Doctor
	for _, d := range r.doctors {
		if d.DeletedAt == nil {
			cp := *d
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}
