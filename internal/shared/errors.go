// Package shared holds cross-cutting concerns: error kinds, idempotency,
// keyed locking and pagination metadata.
package shared

import "errors"

// Sentinel errors for the engine. Domain packages wrap these with context
// so callers can classify any failure with errors.Is.
var (
	// ErrCapacityExceeded indicates a reservation was denied because the
	// department has no free seats.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInvalidStateTransition indicates the requested edge is not in the
	// admission transition table.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrScheduleConflict indicates overlapping dual-placement time windows.
	ErrScheduleConflict = errors.New("schedule conflict")
	// ErrAlreadyResolved indicates a duplicate resolution of a change request.
	ErrAlreadyResolved = errors.New("request already resolved")
	// ErrNotFound indicates an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input or parameters.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrentModification indicates the caller lost a race for the same
	// admission or department and must retry.
	ErrConcurrentModification = errors.New("concurrent modification conflict")
)

// ErrorKind classifies a failure for structured results (bulk actions,
// problem responses).
type ErrorKind string

const (
	KindCapacityExceeded       ErrorKind = "CAPACITY_EXCEEDED"
	KindInvalidStateTransition ErrorKind = "INVALID_STATE_TRANSITION"
	KindScheduleConflict       ErrorKind = "SCHEDULE_CONFLICT"
	KindAlreadyResolved        ErrorKind = "ALREADY_RESOLVED"
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindValidation             ErrorKind = "VALIDATION_ERROR"
	KindConflict               ErrorKind = "CONCURRENT_MODIFICATION_CONFLICT"
	KindInternal               ErrorKind = "INTERNAL"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrInvalidStateTransition):
		return KindInvalidStateTransition
	case errors.Is(err, ErrScheduleConflict):
		return KindScheduleConflict
	case errors.Is(err, ErrAlreadyResolved):
		return KindAlreadyResolved
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrIdempotencyConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
