package opentickets

import "errors"

var (
	// ErrValidation is returned for malformed issue or survey input.
	ErrValidation = errors.New("validation error")

	// ErrTicketNotUsable is returned when a ticket is outside its validity window or in the wrong state.
	ErrTicketNotUsable = errors.New("ticket not usable")

	// ErrCannotCancelUsedTicket is returned when cancelling a ticket that was already converted.
	ErrCannotCancelUsedTicket = errors.New("cannot cancel used ticket")

	// ErrSurveyAlreadyRecorded is returned on a second survey for the same ticket.
	ErrSurveyAlreadyRecorded = errors.New("survey already recorded")

	// ErrNotFound is returned when a ticket does not exist.
	ErrNotFound = errors.New("open ticket not found")

	// ErrUnknownPatient is returned when the patient directory does not know the patient.
	ErrUnknownPatient = errors.New("unknown patient")
)
