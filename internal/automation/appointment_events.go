package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// AppointmentReader loads the appointment named by a change event.
type AppointmentReader interface {
	Get(ctx context.Context, id string) (*appointments.Appointment, error)
}

// AppointmentSubject projects an appointment into the fact record rules read.
// Bridge actions find their way back through FieldAppointmentID.
func AppointmentSubject(a *appointments.Appointment) *Subject {
	return &Subject{
		ID:              a.ID,
		Name:            a.PatientRef,
		Kind:            SubjectAppointment,
		Status:          string(a.Status),
		StatusChangedAt: a.StatusChangedAt,
		EstimatedValue:  float64(a.CostCents) / 100,
		Attempts:        a.RescheduleCount,
		Tags:            []string{},
		CustomFields: map[string]string{
			FieldAppointmentID: a.ID,
			FieldBranch:        a.BranchRef,
			FieldService:       string(a.ConsultationType),
		},
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// AppointmentEvents runs the stored rules against an appointment every time
// its state machine accepts an operation.
type AppointmentEvents struct {
	appts  AppointmentReader
	orch   *Orchestrator
	logger *logging.Logger
	role   string
	now    func() time.Time
}

func NewAppointmentEvents(appts AppointmentReader, orch *Orchestrator, logger *logging.Logger) *AppointmentEvents {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentEvents{appts: appts, orch: orch, logger: logger, role: SystemRole, now: time.Now}
}

func (h *AppointmentEvents) WithClock(now func() time.Time) *AppointmentEvents {
	if now != nil {
		h.now = now
	}
	return h
}

// Handle acknowledges undecodable payloads and vanished appointments. Rule
// store failures are returned so the entry stays pending.
func (h *AppointmentEvents) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeAppointmentChanged {
		return nil
	}
	var evt events.AppointmentChangedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		h.logger.Error("automation: undecodable appointment event dropped", "event_id", entry.ID, "error", err)
		return nil
	}
	id := evt.AppointmentID
	if id == "" {
		id = entry.AggregateID
	}

	a, err := h.appts.Get(ctx, id)
	if errors.Is(err, appointments.ErrNotFound) {
		h.logger.Warn("automation: appointment event for unknown appointment", "event_id", entry.ID, "appointment_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("automation: load appointment %s: %w", id, err)
	}

	logs, err := h.orch.RunStored(ctx, AppointmentSubject(a), h.role, h.now())
	if err != nil {
		return fmt.Errorf("automation: appointment %s: %w", id, err)
	}
	h.logger.Debug("automation: appointment event evaluated",
		"appointment_id", id,
		"operation", evt.Operation,
		"status", a.Status,
		"rules_applied", len(logs),
	)
	return nil
}

var _ events.DeliveryHandler = (*AppointmentEvents)(nil)
