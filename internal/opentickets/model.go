package opentickets

import "time"

// Status is the lifecycle state of an open ticket. Every state other than
// Active is terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusUsed      Status = "used"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

const (
	DefaultValidityDays = 30
	MinValidityDays     = 1
	MaxValidityDays     = 90
)

// Ticket authorizes a follow-up visit without a fixed slot.
type Ticket struct {
	ID                     string     `json:"id"`
	Code                   string     `json:"code"`
	PatientRef             string     `json:"patient_ref"`
	BranchRef              string     `json:"branch_ref"`
	Specialty              string     `json:"specialty"`
	PreferredDoctor        string     `json:"preferred_doctor,omitempty"`
	IssueDate              time.Time  `json:"issue_date"`
	ValidFrom              time.Time  `json:"valid_from"`
	ValidUntil             time.Time  `json:"valid_until"`
	ValidityDays           int        `json:"validity_days"`
	Status                 Status     `json:"status"`
	UsedAt                 *time.Time `json:"used_at,omitempty"`
	GeneratedAppointmentID string     `json:"generated_appointment_id,omitempty"`
	ArrivalTime            *time.Time `json:"arrival_time,omitempty"`
	OriginAppointmentID    string     `json:"origin_appointment_id"`
	PriorVisitNotes        string     `json:"prior_visit_notes,omitempty"`
	EstimatedCostCents     int64      `json:"estimated_cost_cents"`
	RequiresPayment        bool       `json:"requires_payment"`
	SurveyCompleted        bool       `json:"survey_completed"`
	SatisfactionRating     *int       `json:"satisfaction_rating,omitempty"`
	SurveyComments         string     `json:"survey_comments,omitempty"`
	CancellationReason     string     `json:"cancellation_reason,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Clone returns a deep copy.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.UsedAt != nil {
		v := *t.UsedAt
		cp.UsedAt = &v
	}
	if t.ArrivalTime != nil {
		v := *t.ArrivalTime
		cp.ArrivalTime = &v
	}
	if t.SatisfactionRating != nil {
		v := *t.SatisfactionRating
		cp.SatisfactionRating = &v
	}
	return &cp
}

// Reasons reported by CanBeUsed.
const (
	ReasonWrongState  = "wrong state"
	ReasonNotYetValid = "not yet valid"
	ReasonExpired     = "expired"
)

// CanBeUsed reports whether the ticket can be redeemed at now. Both window
// bounds are inclusive. When false, reason explains why.
func CanBeUsed(t *Ticket, now time.Time) (bool, string) {
	switch {
	case t.Status != StatusActive:
		return false, ReasonWrongState
	case now.Before(t.ValidFrom):
		return false, ReasonNotYetValid
	case now.After(t.ValidUntil):
		return false, ReasonExpired
	}
	return true, ""
}
