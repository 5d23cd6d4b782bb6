package doctor

import "errors"

var (
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrDoctorInactive = errors.New("doctor is not active")
)
