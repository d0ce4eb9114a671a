package events

import "time"

// Event type identifiers written to the outbox.
const (
	TypeAppointmentChanged    = "appointment.changed.v1"
	TypeOpenTicketChanged     = "open_ticket.changed.v1"
	TypeNotificationRequested = "notification.requested.v1"
)

// AppointmentChangedV1 is emitted after every accepted state machine operation.
type AppointmentChangedV1 struct {
	EventID       string    `json:"event_id"`
	AppointmentID string    `json:"appointment_id"`
	PatientRef    string    `json:"patient_ref"`
	BranchRef     string    `json:"branch_ref"`
	Operation     string    `json:"operation"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OpenTicketChangedV1 is emitted when an open ticket is issued, used, expired or cancelled.
type OpenTicketChangedV1 struct {
	EventID       string    `json:"event_id"`
	TicketID      string    `json:"ticket_id"`
	Code          string    `json:"code"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NotificationRequestedV1 records the dispatch intent of a send-notification action.
// Delivery happens downstream of the outbox.
type NotificationRequestedV1 struct {
	EventID     string    `json:"event_id"`
	RuleID      string    `json:"rule_id"`
	SubjectID   string    `json:"subject_id"`
	Channel     string    `json:"channel"`
	Recipient   string    `json:"recipient"`
	Message     string    `json:"message"`
	Variant     string    `json:"variant,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
