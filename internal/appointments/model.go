package appointments

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusArrived   Status = "arrived"
	StatusInService Status = "in_service"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusArrived, StatusInService,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// ConsultationType classifies the visit.
type ConsultationType string

const (
	ConsultationFirstTime  ConsultationType = "first_time"
	ConsultationSubsequent ConsultationType = "subsequent"
	ConsultationUrgent     ConsultationType = "urgent"
)

// Date and clock layouts used by ScheduledDate and ScheduledTime.
const (
	DateLayout  = time.DateOnly
	ClockLayout = "15:04"
)

// Appointment is a booked visit. Money is stored in cents.
type Appointment struct {
	ID                 string           `json:"id"`
	PatientRef         string           `json:"patient_ref"`
	BranchRef          string           `json:"branch_ref"`
	DoctorRef          string           `json:"doctor_ref,omitempty"`
	ScheduledDate      string           `json:"scheduled_date"`
	ScheduledTime      string           `json:"scheduled_time"`
	DurationMinutes    int              `json:"duration_minutes"`
	ConsultationType   ConsultationType `json:"consultation_type"`
	Status             Status           `json:"status"`
	PromotionApplied   bool             `json:"promotion_applied"`
	RescheduleCount    int              `json:"reschedule_count"`
	CostCents          int64            `json:"cost_cents"`
	RegularPriceCents  int64            `json:"regular_price_cents"`
	AmountPaidCents    int64            `json:"amount_paid_cents"`
	BalanceDueCents    int64            `json:"balance_due_cents"`
	ArrivalTime        *time.Time       `json:"arrival_time,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	OriginTicketID     string           `json:"origin_ticket_id,omitempty"`
	StatusChangedAt    time.Time        `json:"status_changed_at"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ScheduledFor combines ScheduledDate and ScheduledTime in loc.
func (a *Appointment) ScheduledFor(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, a.ScheduledDate+" "+a.ScheduledTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: scheduled date/time %q %q", ErrValidation, a.ScheduledDate, a.ScheduledTime)
	}
	return t, nil
}

// RecomputeBalance restores balanceDue = cost - amountPaid.
func (a *Appointment) RecomputeBalance() {
	a.BalanceDueCents = a.CostCents - a.AmountPaidCents
}

func (a *Appointment) setStatus(s Status, now time.Time) {
	if a.Status != s {
		a.Status = s
		a.StatusChangedAt = now
	}
	a.UpdatedAt = now
}

// Clone returns a copy safe to mutate.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	cp := *a
	if a.ArrivalTime != nil {
		t := *a.ArrivalTime
		cp.ArrivalTime = &t
	}
	return &cp
}
