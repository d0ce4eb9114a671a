package automation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// AppointmentMachine is the part of the appointment state machine that
// bridge actions drive.
type AppointmentMachine interface {
	Get(ctx context.Context, id string) (*appointments.Appointment, error)
	Confirm(ctx context.Context, id string) (*appointments.Appointment, error)
	RegisterArrival(ctx context.Context, id string, arrivalTime time.Time) (*appointments.ArrivalResult, error)
	Reschedule(ctx context.Context, id string, in appointments.RescheduleInput) (*appointments.RescheduleResult, error)
}

// Assignment sentinels understood by the downstream router.
const (
	AssignAutoBranch   = "auto-branch"
	AssignAutoReassign = "auto-reassign"
	AssignSupervisor   = "supervisor"
)

// DefaultMessagingWindowDays is how long after the last response social
// channels may still be messaged.
const DefaultMessagingWindowDays = 7

// Step is one completed action.
type Step struct {
	Action  ActionKind `json:"action"`
	Summary string     `json:"summary"`
}

// ExecutionResult reports the completed prefix of a rule's actions. Err and
// Failed are set when an action stopped the chain.
type ExecutionResult struct {
	Completed []Step
	Failed    *Action
	Err       error
}

// Executor applies rule actions to a subject.
type Executor struct {
	machine    AppointmentMachine
	publisher  events.Publisher
	metrics    *metrics.EngineMetrics
	logger     *logging.Logger
	random     func() float64
	windowDays int
}

func NewExecutor(machine AppointmentMachine, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		machine:    machine,
		logger:     logger,
		random:     rand.Float64,
		windowDays: DefaultMessagingWindowDays,
	}
}

// WithPublisher records notification intents to the outbox.
func (x *Executor) WithPublisher(p events.Publisher) *Executor {
	x.publisher = p
	return x
}

func (x *Executor) WithMetrics(m *metrics.EngineMetrics) *Executor {
	x.metrics = m
	return x
}

// WithRandom injects the [0,1) source used for A/B draws.
func (x *Executor) WithRandom(fn func() float64) *Executor {
	if fn != nil {
		x.random = fn
	}
	return x
}

func (x *Executor) WithMessagingWindow(days int) *Executor {
	if days > 0 {
		x.windowDays = days
	}
	return x
}

// Execute runs the rule's actions in order and stops at the first failure.
func (x *Executor) Execute(ctx context.Context, r *Rule, s *Subject, now time.Time) ExecutionResult {
	var res ExecutionResult
	for i := range r.Actions {
		a := r.Actions[i]
		summary, err := x.apply(ctx, r, a, s, now)
		if err != nil {
			res.Failed = &a
			res.Err = err
			x.metrics.ObserveActionFailure(string(a.Type))
			return res
		}
		res.Completed = append(res.Completed, Step{Action: a.Type, Summary: summary})
	}
	if len(res.Completed) > 0 {
		s.UpdatedAt = now
	}
	return res
}

// MessagingBlocked reports the send-notification guard for the subject.
func (x *Executor) MessagingBlocked(s *Subject, now time.Time) bool {
	if s.MessagingBlocked {
		return true
	}
	return IsSocialChannel(s.Channel) && s.DaysSinceResponse(now) > x.windowDays
}

func requireValue(a Action) (string, error) {
	v := strings.TrimSpace(string(a.Value))
	if v == "" {
		return "", fmt.Errorf("%w: %s requires a value", ErrActionFailed, a.Type)
	}
	return v, nil
}

func (x *Executor) apply(ctx context.Context, r *Rule, a Action, s *Subject, now time.Time) (string, error) {
	switch a.Type {
	case ActionMoveStatus:
		v, err := requireValue(a)
		if err != nil {
			return "", err
		}
		from := s.Status
		s.SetStatus(v, now)
		return fmt.Sprintf("status %s to %s", from, v), nil

	case ActionAddTag:
		v, err := requireValue(a)
		if err != nil {
			return "", err
		}
		if !s.AddTag(v) {
			return "tag " + v + " already present", nil
		}
		return "tag " + v + " added", nil

	case ActionRemoveTag:
		v, err := requireValue(a)
		if err != nil {
			return "", err
		}
		if !s.RemoveTag(v) {
			return "tag " + v + " not present", nil
		}
		return "tag " + v + " removed", nil

	case ActionAssign:
		v, err := requireValue(a)
		if err != nil {
			return "", err
		}
		s.AssignedTo = v
		switch v {
		case AssignAutoBranch, AssignAutoReassign, AssignSupervisor:
			return "assignment routed via " + v, nil
		}
		return "assigned to " + v, nil

	case ActionSendNotification:
		return x.sendNotification(ctx, r, a, s, now)

	case ActionCreateTask:
		v, err := requireValue(a)
		if err != nil {
			return "", err
		}
		s.SetField(FieldPendingTask, v)
		return "task created: " + v, nil

	case ActionNotifySupervisor:
		v := strings.TrimSpace(string(a.Value))
		if v == "" {
			v = r.Name
		}
		s.SetField(FieldSupervisorNotice, v)
		return "supervisor notified", nil

	case ActionIntegration:
		v, err := requireValue(a)
		if err != nil {
			return "", err
		}
		s.SetField(FieldIntegration, v)
		return "integration queued: " + v, nil

	case ActionBlockConversation:
		s.MessagingBlocked = true
		s.AddTag(TagBlocked)
		if v := strings.TrimSpace(string(a.Value)); v != "" {
			s.SetField(FieldBlockReason, v)
		}
		return "conversation blocked", nil

	case ActionUnblockConversation:
		s.MessagingBlocked = false
		s.RemoveTag(TagBlocked)
		delete(s.CustomFields, FieldBlockReason)
		return "conversation unblocked", nil

	case ActionConfirmAppointment, ActionRegisterArrival, ActionRescheduleAppointment:
		return x.bridge(ctx, a, s, now)
	}
	return "", fmt.Errorf("%w: unsupported action %q", ErrActionFailed, a.Type)
}

func (x *Executor) sendNotification(ctx context.Context, r *Rule, a Action, s *Subject, now time.Time) (string, error) {
	if x.MessagingBlocked(s, now) {
		return "", fmt.Errorf("%w: subject %s on %s", ErrMessagingBlocked, s.ID, s.Channel)
	}
	message := strings.TrimSpace(string(a.Value))
	variant := ""
	if ab := r.ABTest; ab != nil && ab.Enabled {
		if x.random() < float64(ab.Ratio)/100 {
			variant, message = "A", ab.VariantA
		} else {
			variant, message = "B", ab.VariantB
		}
	}
	if message == "" {
		return "", fmt.Errorf("%w: send-notification has no message", ErrActionFailed)
	}

	if x.publisher != nil {
		evt := events.NotificationRequestedV1{
			EventID:     uuid.NewString(),
			RuleID:      r.ID,
			SubjectID:   s.ID,
			Channel:     s.Channel,
			Recipient:   s.Contact,
			Message:     message,
			Variant:     variant,
			RequestedAt: now,
		}
		if err := x.publisher.Publish(ctx, s.ID, events.TypeNotificationRequested, evt); err != nil {
			return "", fmt.Errorf("%w: record notification: %w", ErrActionFailed, err)
		}
	}
	s.SetField(FieldLastNotification, message)
	if variant != "" {
		s.SetField(FieldNotificationVariant, variant)
		return fmt.Sprintf("notification queued on %s (variant %s)", s.Channel, variant), nil
	}
	return "notification queued on " + s.Channel, nil
}

// bridge re-reads the appointment before acting so guards see current state.
func (x *Executor) bridge(ctx context.Context, a Action, s *Subject, now time.Time) (string, error) {
	if x.machine == nil {
		return "", fmt.Errorf("%w: %s: no appointment machine configured", ErrActionFailed, a.Type)
	}
	id := s.Field(FieldAppointmentID)
	if id == "" {
		return "", fmt.Errorf("%w: %s: subject has no linked appointment", ErrActionFailed, a.Type)
	}
	current, err := x.machine.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrActionFailed, a.Type, err)
	}

	var updated *appointments.Appointment
	var summary string
	switch a.Type {
	case ActionConfirmAppointment:
		if current.Status.Terminal() {
			return "", fmt.Errorf("%w: %s: %w: appointment is %s", ErrActionFailed, a.Type, appointments.ErrInvalidTransition, current.Status)
		}
		updated, err = x.machine.Confirm(ctx, id)
		summary = "appointment confirmed"

	case ActionRegisterArrival:
		if current.Status != appointments.StatusScheduled && current.Status != appointments.StatusConfirmed {
			return "", fmt.Errorf("%w: %s: %w: appointment is %s", ErrActionFailed, a.Type, appointments.ErrInvalidTransition, current.Status)
		}
		var res *appointments.ArrivalResult
		res, err = x.machine.RegisterArrival(ctx, id, now)
		if err == nil {
			updated = res.Appointment
			summary = "arrival registered: " + string(res.Outcome)
		}

	case ActionRescheduleAppointment:
		date, clock, ok := strings.Cut(strings.TrimSpace(string(a.Value)), " ")
		date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
		if !ok || date == "" || clock == "" {
			return "", fmt.Errorf("%w: %s: %w: target date and time are required", ErrActionFailed, a.Type, appointments.ErrValidation)
		}
		if current.Status.Terminal() {
			return "", fmt.Errorf("%w: %s: %w: appointment is %s", ErrActionFailed, a.Type, appointments.ErrInvalidTransition, current.Status)
		}
		var res *appointments.RescheduleResult
		res, err = x.machine.Reschedule(ctx, id, appointments.RescheduleInput{Date: date, Time: clock, Reason: "automation"})
		if err == nil {
			updated = res.Appointment
			summary = fmt.Sprintf("appointment moved to %s %s", date, clock)
			if res.PromotionLost {
				summary += " (promotion lost)"
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrActionFailed, a.Type, err)
	}
	if s.Kind == SubjectAppointment && updated != nil {
		s.SetStatus(string(updated.Status), now)
	}
	return summary, nil
}
