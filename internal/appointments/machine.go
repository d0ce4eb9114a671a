package appointments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinicops.internal.appointments")

// Machine is the guarded state machine for a single appointment. Callers must
// serialize operations per appointment id.
type Machine struct {
	repo      Repository
	capacity  CapacityChecker
	publisher events.Publisher
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
	loc       *time.Location
	tolerance time.Duration
	now       func() time.Time
}

// NewMachine constructs a state machine over repo.
func NewMachine(repo Repository, logger *logging.Logger) *Machine {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{
		repo:      repo,
		logger:    logger,
		loc:       time.UTC,
		tolerance: DefaultArrivalTolerance,
		now:       time.Now,
	}
}

func (m *Machine) WithCapacity(c CapacityChecker) *Machine {
	m.capacity = c
	return m
}

func (m *Machine) WithPublisher(p events.Publisher) *Machine {
	m.publisher = p
	return m
}

func (m *Machine) WithMetrics(em *metrics.EngineMetrics) *Machine {
	m.metrics = em
	return m
}

// WithLocation sets the clinic time zone used for calendar-day checks.
func (m *Machine) WithLocation(loc *time.Location) *Machine {
	if loc != nil {
		m.loc = loc
	}
	return m
}

func (m *Machine) WithTolerance(d time.Duration) *Machine {
	if d >= 0 {
		m.tolerance = d
	}
	return m
}

func (m *Machine) WithClock(now func() time.Time) *Machine {
	if now != nil {
		m.now = now
	}
	return m
}

// BookInput describes a new booking.
type BookInput struct {
	PatientRef        string           `json:"patient_ref"`
	BranchRef         string           `json:"branch_ref"`
	DoctorRef         string           `json:"doctor_ref,omitempty"`
	ScheduledDate     string           `json:"scheduled_date"`
	ScheduledTime     string           `json:"scheduled_time"`
	DurationMinutes   int              `json:"duration_minutes"`
	ConsultationType  ConsultationType `json:"consultation_type"`
	PromotionApplied  bool             `json:"promotion_applied"`
	CostCents         int64            `json:"cost_cents"`
	RegularPriceCents int64            `json:"regular_price_cents"`
	AmountPaidCents   int64            `json:"amount_paid_cents"`
}

// RescheduleInput moves an appointment to a new slot.
type RescheduleInput struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

// RescheduleResult carries the promotion decision alongside the appointment.
type RescheduleResult struct {
	Appointment *Appointment `json:"appointment"`
	PromotionOutcome
}

// Get returns the current record.
func (m *Machine) Get(ctx context.Context, id string) (*Appointment, error) {
	return m.repo.Get(ctx, id)
}

// Book creates a Scheduled appointment after checking slot capacity.
func (m *Machine) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()

	if strings.TrimSpace(in.PatientRef) == "" || strings.TrimSpace(in.BranchRef) == "" {
		return nil, fmt.Errorf("%w: patient and branch are required", ErrValidation)
	}
	if in.CostCents < 0 || in.AmountPaidCents < 0 || in.RegularPriceCents < 0 {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}
	if in.ConsultationType == "" {
		in.ConsultationType = ConsultationFirstTime
	}
	if in.DurationMinutes <= 0 {
		in.DurationMinutes = 30
	}
	if in.RegularPriceCents == 0 {
		in.RegularPriceCents = in.CostCents
	}

	now := m.now().UTC()
	a := &Appointment{
		ID:                uuid.NewString(),
		PatientRef:        in.PatientRef,
		BranchRef:         in.BranchRef,
		DoctorRef:         in.DoctorRef,
		ScheduledDate:     in.ScheduledDate,
		ScheduledTime:     in.ScheduledTime,
		DurationMinutes:   in.DurationMinutes,
		ConsultationType:  in.ConsultationType,
		Status:            StatusScheduled,
		PromotionApplied:  in.PromotionApplied,
		CostCents:         in.CostCents,
		RegularPriceCents: in.RegularPriceCents,
		AmountPaidCents:   in.AmountPaidCents,
		StatusChangedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	at, err := a.ScheduledFor(m.loc)
	if err != nil {
		return nil, err
	}
	if err := m.checkCapacity(ctx, a.BranchRef, at, ""); err != nil {
		m.metrics.ObserveTransition("book", err)
		return nil, err
	}
	a.RecomputeBalance()

	if err := m.repo.Create(ctx, a); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: book: %w", err)
	}
	m.metrics.ObserveTransition("book", nil)
	m.emit(ctx, a, "book", "", "")
	m.logger.Info("appointment booked", "appointment_id", a.ID, "branch", a.BranchRef, "date", a.ScheduledDate, "time", a.ScheduledTime)
	return a, nil
}

// Confirm moves a Scheduled appointment to Confirmed. Re-confirming a
// Confirmed appointment succeeds without a state change.
func (m *Machine) Confirm(ctx context.Context, id string) (*Appointment, error) {
	return m.transition(ctx, "confirm", id, func(a *Appointment, now time.Time) (string, error) {
		switch a.Status {
		case StatusScheduled:
			a.setStatus(StatusConfirmed, now)
		case StatusConfirmed:
		default:
			return "", fmt.Errorf("%w: cannot confirm %s appointment", ErrInvalidTransition, a.Status)
		}
		return "", nil
	})
}

// RegisterArrival records check-in. A zero arrivalTime means now. The
// appointment must be scheduled for today in the clinic time zone. Arrivals
// more than the tolerance late are waitlisted and the appointment becomes NoShow.
func (m *Machine) RegisterArrival(ctx context.Context, id string, arrivalTime time.Time) (*ArrivalResult, error) {
	result := &ArrivalResult{}
	a, err := m.transition(ctx, "register_arrival", id, func(a *Appointment, now time.Time) (string, error) {
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			return "", fmt.Errorf("%w: cannot register arrival for %s appointment", ErrInvalidTransition, a.Status)
		}
		if a.ArrivalTime != nil {
			return "", fmt.Errorf("%w: arrival already registered", ErrInvalidTransition)
		}
		scheduled, err := a.ScheduledFor(m.loc)
		if err != nil {
			return "", err
		}
		today := now.In(m.loc)
		if !sameCalendarDay(scheduled, today) {
			return "", fmt.Errorf("%w: appointment is scheduled for %s, not today", ErrInvalidTransition, a.ScheduledDate)
		}

		arrival := arrivalTime
		if arrival.IsZero() {
			arrival = now
		}
		arrival = arrival.UTC()
		result.LatenessMinutes = latenessMinutes(scheduled, arrival)
		result.Outcome = classifyArrival(result.LatenessMinutes, m.tolerance)

		a.ArrivalTime = &arrival
		a.UpdatedAt = now
		if result.Outcome == ArrivalWaitlisted {
			a.setStatus(StatusNoShow, now)
		}
		return string(result.Outcome), nil
	})
	if err != nil {
		return nil, err
	}
	result.Appointment = a
	m.metrics.ObserveArrival(string(result.Outcome))
	return result, nil
}

// Reschedule moves a Scheduled or Confirmed appointment to a new slot, keeping
// its status. The destination slot capacity is re-validated.
func (m *Machine) Reschedule(ctx context.Context, id string, in RescheduleInput) (*RescheduleResult, error) {
	newDate := strings.TrimSpace(in.Date)
	newTime := strings.TrimSpace(in.Time)
	if newDate == "" || newTime == "" {
		return nil, fmt.Errorf("%w: reschedule requires date and time", ErrValidation)
	}
	target, err := time.ParseInLocation(DateLayout+" "+ClockLayout, newDate+" "+newTime, m.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid target slot %q %q", ErrValidation, newDate, newTime)
	}

	result := &RescheduleResult{}
	a, err := m.transition(ctx, "reschedule", id, func(a *Appointment, now time.Time) (string, error) {
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			return "", fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidTransition, a.Status)
		}
		if a.ArrivalTime != nil {
			return "", fmt.Errorf("%w: patient already arrived", ErrInvalidTransition)
		}
		if err := m.checkCapacity(ctx, a.BranchRef, target, a.ID); err != nil {
			return "", err
		}
		result.PromotionOutcome = applyReschedulePolicy(a)
		a.ScheduledDate = newDate
		a.ScheduledTime = newTime
		a.UpdatedAt = now
		detail := fmt.Sprintf("moved to %s %s", newDate, newTime)
		if result.PromotionLost {
			detail += "; promotion lost"
		}
		if r := strings.TrimSpace(in.Reason); r != "" {
			detail += "; reason: " + r
		}
		return detail, nil
	})
	if err != nil {
		return nil, err
	}
	result.Appointment = a
	return result, nil
}

// Cancel moves any non-terminal appointment to Cancelled. A reason is required.
func (m *Machine) Cancel(ctx context.Context, id string, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}
	return m.transition(ctx, "cancel", id, func(a *Appointment, now time.Time) (string, error) {
		if a.Status.Terminal() {
			return "", fmt.Errorf("%w: cannot cancel %s appointment", ErrInvalidTransition, a.Status)
		}
		a.CancellationReason = reason
		a.setStatus(StatusCancelled, now)
		return reason, nil
	})
}

// StartService moves an arrived patient into service.
func (m *Machine) StartService(ctx context.Context, id string) (*Appointment, error) {
	return m.transition(ctx, "start_service", id, func(a *Appointment, now time.Time) (string, error) {
		arrived := a.Status == StatusArrived ||
			((a.Status == StatusScheduled || a.Status == StatusConfirmed) && a.ArrivalTime != nil)
		if !arrived {
			return "", fmt.Errorf("%w: cannot start service for %s appointment without arrival", ErrInvalidTransition, a.Status)
		}
		a.setStatus(StatusInService, now)
		return "", nil
	})
}

// Complete closes an appointment that is arrived or in service.
func (m *Machine) Complete(ctx context.Context, id string) (*Appointment, error) {
	return m.transition(ctx, "complete", id, func(a *Appointment, now time.Time) (string, error) {
		if a.Status != StatusArrived && a.Status != StatusInService {
			return "", fmt.Errorf("%w: cannot complete %s appointment", ErrInvalidTransition, a.Status)
		}
		a.setStatus(StatusCompleted, now)
		return "", nil
	})
}

func (m *Machine) transition(ctx context.Context, op, id string, apply func(a *Appointment, now time.Time) (string, error)) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments."+op)
	defer span.End()
	span.SetAttributes(attribute.String("clinicops.appointment_id", id))

	a, err := m.repo.Get(ctx, id)
	if err != nil {
		m.metrics.ObserveTransition(op, err)
		return nil, err
	}
	from := a.Status
	now := m.now().UTC()

	detail, err := apply(a, now)
	if err != nil {
		m.metrics.ObserveTransition(op, err)
		m.logger.Info("appointment transition rejected", "operation", op, "appointment_id", id, "status", from, "error", err)
		return nil, err
	}
	a.RecomputeBalance()

	if err := m.repo.Update(ctx, a); err != nil {
		span.RecordError(err)
		m.metrics.ObserveTransition(op, err)
		return nil, fmt.Errorf("appointments: %s: %w", op, err)
	}
	m.metrics.ObserveTransition(op, nil)
	m.emit(ctx, a, op, from, detail)
	m.logger.Info("appointment transition applied", "operation", op, "appointment_id", id, "from", from, "to", a.Status)
	return a, nil
}

func (m *Machine) checkCapacity(ctx context.Context, branchRef string, at time.Time, excludeID string) error {
	if m.capacity == nil {
		return nil
	}
	ok, err := m.capacity.HasCapacity(ctx, branchRef, at, excludeID)
	if err != nil {
		return fmt.Errorf("appointments: capacity check: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s at %s", ErrNoCapacity, branchRef, at.Format(DateLayout+" "+ClockLayout))
	}
	return nil
}

func (m *Machine) emit(ctx context.Context, a *Appointment, op string, from Status, detail string) {
	if m.publisher == nil {
		return
	}
	evt := events.AppointmentChangedV1{
		EventID:       uuid.NewString(),
		AppointmentID: a.ID,
		PatientRef:    a.PatientRef,
		BranchRef:     a.BranchRef,
		Operation:     op,
		FromStatus:    string(from),
		ToStatus:      string(a.Status),
		Detail:        detail,
		OccurredAt:    a.UpdatedAt,
	}
	if err := m.publisher.Publish(ctx, a.ID, events.TypeAppointmentChanged, evt); err != nil {
		m.logger.Warn("appointment event publish failed", "appointment_id", a.ID, "operation", op, "error", err)
	}
}
