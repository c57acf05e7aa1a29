package canharness

import (
	"errors"
	"fmt"
)

type unrecoverableError struct {
	error
}

func (e unrecoverableError) Error() string {
	if e.error == nil {
		return "unrecoverable error"
	}
	return e.error.Error()
}

func (e unrecoverableError) Unwrap() error {
	return e.error
}

// Unrecoverable wraps an error in `unrecoverableError` struct
func Unrecoverable(err error) error {
	return unrecoverableError{err}
}

// IsRecoverable checks if error is an instance of `unrecoverableError`
func IsRecoverable(err error) bool {
	var ue unrecoverableError
	return !errors.As(err, &ue)
}

var (
	ErrAdmission        = errors.New("task admission failed, no free scheduler slots")
	ErrSchedulerClosed  = errors.New("scheduler closed")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrDroppedFrame     = errors.New("controller receive queue full")
	ErrControllerClosed = errors.New("controller closed")
	ErrUnknownAdapter   = errors.New("unknown adapter")
)

// DriverError is a setup time controller failure (configure or start). It
// is fatal: the harness never arms after one.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}
