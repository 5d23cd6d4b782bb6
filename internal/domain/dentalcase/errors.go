package dentalcase

import "errors"

var (
	ErrCaseNotFound            = errors.New("case not found")
	ErrCaseModified            = errors.New("case was modified concurrently")
	ErrInvalidStatusTransition = errors.New("invalid case status transition")
	ErrInvalidUrgency          = errors.New("invalid urgency value")
	ErrCaseNotOpen             = errors.New("case is not accepting proposals")
	ErrCaseAlreadyPaid         = errors.New("case has already been paid")
	ErrDoctorNotAssigned       = errors.New("doctor is not assigned to this case")
)
