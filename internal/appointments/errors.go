package appointments

import "errors"

var (
	// ErrValidation is returned for malformed input such as a missing cancellation reason.
	ErrValidation = errors.New("validation error")

	// ErrInvalidTransition is returned when the current state or calendar day disallows an operation.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNoCapacity is returned when the destination slot of a reschedule is full.
	ErrNoCapacity = errors.New("no capacity in target slot")

	// ErrNotFound is returned when an appointment does not exist.
	ErrNotFound = errors.New("appointment not found")
)
