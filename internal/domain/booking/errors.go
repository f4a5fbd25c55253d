package booking

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrSlotUnavailable      = errors.New("slot is no longer available")
	ErrCapacityExceeded     = errors.New("number of people exceeds service capacity")
	ErrOutsideBusinessHours = errors.New("requested time is outside business hours")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrPersistenceConflict  = errors.New("concurrent write conflict")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrForbidden            = errors.New("not allowed to act on this booking")
)

// ValidationError carries per-field messages. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
