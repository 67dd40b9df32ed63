package domain

import "errors"

var (
	ErrEmployeeNotFound     = errors.New("employee not found")
	ErrDoubleBooked         = errors.New("doctor already has a reservation during that time")
	ErrOutsideSchedule      = errors.New("reservation is outside the doctor's schedule")
	ErrRoomCapacityExceeded = errors.New("no examination room is free during that time")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTemplateMissing      = errors.New("reminder template missing")
	ErrSendFailed           = errors.New("reminder send failed")
)

// ValidationError describes malformed caller input. It matches ErrInvalidInput
// under errors.Is.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}
