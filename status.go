package canharness

import (
	"context"
	"errors"
	"fmt"
)

// Status is a raw driver return code. The numbering follows the ESP-IDF
// esp_err_t values the bus controller firmware reports; codes outside the
// known set are still valid Status values and classify as UnhandledError.
type Status int32

const (
	StatusOK           Status = 0
	StatusFail         Status = -1
	StatusNoMem        Status = 0x101
	StatusInvalidArg   Status = 0x102
	StatusInvalidState Status = 0x103
	StatusInvalidSize  Status = 0x104
	StatusNotFound     Status = 0x105
	StatusNotSupported Status = 0x106
	StatusTimeout      Status = 0x107
)

var statusNames = map[Status]string{
	StatusOK:           "OK",
	StatusFail:         "FAIL",
	StatusNoMem:        "NO_MEM",
	StatusInvalidArg:   "INVALID_ARG",
	StatusInvalidState: "INVALID_STATE",
	StatusInvalidSize:  "INVALID_SIZE",
	StatusNotFound:     "NOT_FOUND",
	StatusNotSupported: "NOT_SUPPORTED",
	StatusTimeout:      "TIMEOUT",
}

// Known reports whether s is one of the named driver codes.
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%X)", int32(s))
}

// Err returns nil for StatusOK and a *StatusError otherwise.
func (s Status) Err(op string) error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}

// StatusError is returned by per-call controller operations.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	if e.Op == "" {
		return e.Status.String()
	}
	return e.Op + ": " + e.Status.String()
}

// StatusOf recovers the driver status carried by err.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	return StatusFail
}
