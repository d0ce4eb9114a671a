package opentickets

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/pkg/logging"
)

var ticketsTracer = otel.Tracer("clinicops.internal.opentickets")

// PatientDirectory resolves patient references owned outside this service.
type PatientDirectory interface {
	Exists(ctx context.Context, patientRef string) (bool, error)
}

// AppointmentWriter receives the walk-in appointment created on conversion.
// Update is used to cancel it again when the ticket cannot be marked used.
type AppointmentWriter interface {
	Create(ctx context.Context, a *appointments.Appointment) error
	Update(ctx context.Context, a *appointments.Appointment) error
}

// ReasonConversionRolledBack is the cancellation reason of a walk-in
// appointment whose ticket could not be marked used.
const ReasonConversionRolledBack = "open ticket conversion rolled back"

// Service implements the open ticket lifecycle.
type Service struct {
	repo      Repository
	seq       CodeSequencer
	appts     AppointmentWriter
	patients  PatientDirectory
	publisher events.Publisher
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
	loc       *time.Location
	batchSize int
	now       func() time.Time
}

func NewService(repo Repository, seq CodeSequencer, appts AppointmentWriter, logger *logging.Logger) *Service {
	if repo == nil || seq == nil || appts == nil {
		panic("opentickets: repository, sequencer and appointment writer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		seq:       seq,
		appts:     appts,
		logger:    logger,
		loc:       time.UTC,
		batchSize: 500,
		now:       time.Now,
	}
}

func (s *Service) WithPatientDirectory(d PatientDirectory) *Service {
	s.patients = d
	return s
}

func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithMetrics(m *metrics.EngineMetrics) *Service {
	s.metrics = m
	return s
}

// WithLocation sets the clinic zone used for code months and walk-in slots.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// IssueInput describes a new ticket. Zero ValidityDays means the default of
// 30, a nil ValidFrom means now and a nil RequiresPayment means true.
type IssueInput struct {
	PatientRef          string     `json:"patient_ref"`
	BranchRef           string     `json:"branch_ref"`
	Specialty           string     `json:"specialty"`
	PreferredDoctor     string     `json:"preferred_doctor,omitempty"`
	OriginAppointmentID string     `json:"origin_appointment_id"`
	PriorVisitNotes     string     `json:"prior_visit_notes,omitempty"`
	ValidityDays        int        `json:"validity_days,omitempty"`
	ValidFrom           *time.Time `json:"valid_from,omitempty"`
	EstimatedCostCents  int64      `json:"estimated_cost_cents"`
	RequiresPayment     *bool      `json:"requires_payment,omitempty"`
}

func (in IssueInput) validate() error {
	if strings.TrimSpace(in.PatientRef) == "" {
		return fmt.Errorf("%w: patient is required", ErrValidation)
	}
	if strings.TrimSpace(in.BranchRef) == "" {
		return fmt.Errorf("%w: branch is required", ErrValidation)
	}
	if in.ValidityDays < MinValidityDays || in.ValidityDays > MaxValidityDays {
		return fmt.Errorf("%w: validity days must be between %d and %d, got %d", ErrValidation, MinValidityDays, MaxValidityDays, in.ValidityDays)
	}
	if in.EstimatedCostCents < 0 {
		return fmt.Errorf("%w: estimated cost must not be negative", ErrValidation)
	}
	return nil
}

// Issue creates an Active ticket with the next sequential code for the branch.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*Ticket, error) {
	ctx, span := ticketsTracer.Start(ctx, "opentickets.issue")
	defer span.End()

	if in.ValidityDays == 0 {
		in.ValidityDays = DefaultValidityDays
	}
	if err := in.validate(); err != nil {
		s.metrics.ObserveTicketOperation("issue", err)
		return nil, err
	}
	if s.patients != nil {
		ok, err := s.patients.Exists(ctx, in.PatientRef)
		if err != nil {
			return nil, fmt.Errorf("opentickets: issue: patient lookup: %w", err)
		}
		if !ok {
			s.metrics.ObserveTicketOperation("issue", ErrUnknownPatient)
			return nil, fmt.Errorf("%w: %s", ErrUnknownPatient, in.PatientRef)
		}
	}

	now := s.now().UTC()
	validFrom := now
	if in.ValidFrom != nil {
		validFrom = in.ValidFrom.UTC()
	}
	requiresPayment := true
	if in.RequiresPayment != nil {
		requiresPayment = *in.RequiresPayment
	}

	issuedAt := now.In(s.loc)
	seq, err := s.seq.Next(ctx, in.BranchRef, issuedAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("opentickets: issue: %w", err)
	}

	t := &Ticket{
		ID:                  uuid.NewString(),
		Code:                FormatCode(in.BranchRef, issuedAt, seq),
		PatientRef:          in.PatientRef,
		BranchRef:           in.BranchRef,
		Specialty:           in.Specialty,
		PreferredDoctor:     in.PreferredDoctor,
		IssueDate:           now,
		ValidFrom:           validFrom,
		ValidUntil:          validFrom.AddDate(0, 0, in.ValidityDays),
		ValidityDays:        in.ValidityDays,
		Status:              StatusActive,
		OriginAppointmentID: in.OriginAppointmentID,
		PriorVisitNotes:     in.PriorVisitNotes,
		EstimatedCostCents:  in.EstimatedCostCents,
		RequiresPayment:     requiresPayment,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("opentickets: issue: %w", err)
	}
	s.metrics.ObserveTicketOperation("issue", nil)
	s.emit(ctx, t, "issue")
	s.logger.Info("open ticket issued", "ticket_id", t.ID, "code", t.Code, "valid_until", t.ValidUntil)
	return t, nil
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.repo.Get(ctx, id)
}

// ConvertInput records the walk-in. A zero ArrivalTime means now.
type ConvertInput struct {
	ArrivalTime    time.Time `json:"arrival_time"`
	AssignedDoctor string    `json:"assigned_doctor,omitempty"`
}

// ConversionResult pairs the used ticket with the appointment it produced.
type ConversionResult struct {
	Ticket      *Ticket                   `json:"ticket"`
	Appointment *appointments.Appointment `json:"appointment"`
}

// ConvertToAppointment redeems the ticket as an Arrived walk-in appointment.
// A second call on the same ticket fails with ErrTicketNotUsable.
func (s *Service) ConvertToAppointment(ctx context.Context, ticketID string, in ConvertInput) (*ConversionResult, error) {
	ctx, span := ticketsTracer.Start(ctx, "opentickets.convert")
	defer span.End()

	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if ok, reason := CanBeUsed(t, now); !ok {
		err := fmt.Errorf("%w: %s", ErrTicketNotUsable, reason)
		s.metrics.ObserveTicketOperation("convert", err)
		return nil, err
	}

	arrival := in.ArrivalTime
	if arrival.IsZero() {
		arrival = now
	}
	arrival = arrival.UTC()
	doctor := strings.TrimSpace(in.AssignedDoctor)
	if doctor == "" {
		doctor = t.PreferredDoctor
	}
	local := arrival.In(s.loc)

	appt := &appointments.Appointment{
		ID:                uuid.NewString(),
		PatientRef:        t.PatientRef,
		BranchRef:         t.BranchRef,
		DoctorRef:         doctor,
		ScheduledDate:     local.Format(appointments.DateLayout),
		ScheduledTime:     local.Format(appointments.ClockLayout),
		DurationMinutes:   30,
		ConsultationType:  appointments.ConsultationSubsequent,
		Status:            appointments.StatusArrived,
		CostCents:         t.EstimatedCostCents,
		RegularPriceCents: t.EstimatedCostCents,
		ArrivalTime:       &arrival,
		OriginTicketID:    t.ID,
		StatusChangedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if !t.RequiresPayment {
		appt.AmountPaidCents = appt.CostCents
	}
	appt.RecomputeBalance()

	if err := s.appts.Create(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("opentickets: convert: create appointment: %w", err)
	}

	t.Status = StatusUsed
	t.UsedAt = &now
	t.ArrivalTime = &arrival
	t.GeneratedAppointmentID = appt.ID
	t.UpdatedAt = now
	if err := s.repo.Update(ctx, t); err != nil {
		span.RecordError(err)
		s.logger.Error("ticket update failed after appointment creation", "ticket_id", t.ID, "appointment_id", appt.ID, "error", err)
		s.rollbackConversion(ctx, appt, now)
		s.metrics.ObserveTicketOperation("convert", err)
		return nil, fmt.Errorf("opentickets: convert: %w", err)
	}
	s.metrics.ObserveTicketOperation("convert", nil)
	s.emit(ctx, t, "convert")
	s.logger.Info("open ticket converted", "ticket_id", t.ID, "appointment_id", appt.ID)
	return &ConversionResult{Ticket: t, Appointment: appt}, nil
}

// rollbackConversion cancels the walk-in appointment so a retry of the still
// Active ticket does not leave two appointments behind.
func (s *Service) rollbackConversion(ctx context.Context, appt *appointments.Appointment, now time.Time) {
	appt.Status = appointments.StatusCancelled
	appt.CancellationReason = ReasonConversionRolledBack
	appt.StatusChangedAt = now
	appt.UpdatedAt = now
	if err := s.appts.Update(ctx, appt); err != nil {
		s.logger.Error("failed to cancel orphaned walk-in appointment", "appointment_id", appt.ID, "ticket_id", appt.OriginTicketID, "error", err)
		return
	}
	s.logger.Warn("walk-in appointment cancelled after failed conversion", "appointment_id", appt.ID, "ticket_id", appt.OriginTicketID)
}

// ExpireBatch moves every Active ticket past its validUntil to Expired and
// returns how many changed. Running it again at the same instant changes nothing.
func (s *Service) ExpireBatch(ctx context.Context, now time.Time) (int, error) {
	ctx, span := ticketsTracer.Start(ctx, "opentickets.expire_batch")
	defer span.End()

	now = now.UTC()
	expired := 0
	for {
		batch, err := s.repo.ListExpirable(ctx, now, s.batchSize)
		if err != nil {
			return expired, fmt.Errorf("opentickets: expire batch: %w", err)
		}
		for _, t := range batch {
			t.Status = StatusExpired
			t.UpdatedAt = now
			if err := s.repo.Update(ctx, t); err != nil {
				s.metrics.ObserveTicketsExpired(expired)
				return expired, fmt.Errorf("opentickets: expire %s: %w", t.ID, err)
			}
			expired++
			s.emit(ctx, t, "expire")
		}
		if len(batch) < s.batchSize {
			break
		}
	}
	s.metrics.ObserveTicketsExpired(expired)
	if expired > 0 {
		s.logger.Info("open tickets expired", "count", expired)
	}
	return expired, nil
}

// SurveyInput holds 1-5 sub-ratings; nil ratings were not answered.
type SurveyInput struct {
	ServiceRating  *int   `json:"service_rating,omitempty"`
	StaffRating    *int   `json:"staff_rating,omitempty"`
	FacilityRating *int   `json:"facility_rating,omitempty"`
	WaitRating     *int   `json:"wait_rating,omitempty"`
	WouldRecommend *bool  `json:"would_recommend,omitempty"`
	Comments       string `json:"comments,omitempty"`
}

type subRating struct {
	label string
	value *int
}

func (in SurveyInput) ratings() []subRating {
	return []subRating{
		{"Service", in.ServiceRating},
		{"Staff", in.StaffRating},
		{"Facility", in.FacilityRating},
		{"Wait time", in.WaitRating},
	}
}

// headline averages the present sub-ratings, rounding half away from zero, and
// builds the composite comment.
func (in SurveyInput) headline() (int, string, error) {
	var (
		sum   int
		n     int
		parts []string
	)
	for _, r := range in.ratings() {
		if r.value == nil {
			continue
		}
		if *r.value < 1 || *r.value > 5 {
			return 0, "", fmt.Errorf("%w: %s rating must be between 1 and 5", ErrValidation, strings.ToLower(r.label))
		}
		sum += *r.value
		n++
		parts = append(parts, fmt.Sprintf("%s: %d/5", r.label, *r.value))
	}
	if n == 0 {
		return 0, "", fmt.Errorf("%w: at least one rating is required", ErrValidation)
	}
	if in.WouldRecommend != nil {
		answer := "no"
		if *in.WouldRecommend {
			answer = "yes"
		}
		parts = append(parts, "Recommends: "+answer)
	}
	if c := strings.TrimSpace(in.Comments); c != "" {
		parts = append(parts, "Comments: "+c)
	}
	rating := int(math.Round(float64(sum) / float64(n)))
	return rating, strings.Join(parts, " | "), nil
}

// RecordSurvey stores the satisfaction survey of a used ticket.
func (s *Service) RecordSurvey(ctx context.Context, ticketID string, in SurveyInput) (*Ticket, error) {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.SurveyCompleted {
		return nil, ErrSurveyAlreadyRecorded
	}
	if t.Status != StatusUsed {
		return nil, fmt.Errorf("%w: survey requires a used ticket, got %s", ErrTicketNotUsable, t.Status)
	}
	rating, comment, err := in.headline()
	if err != nil {
		return nil, err
	}

	t.SurveyCompleted = true
	t.SatisfactionRating = &rating
	t.SurveyComments = comment
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("opentickets: record survey: %w", err)
	}
	s.metrics.ObserveTicketOperation("survey", nil)
	s.emit(ctx, t, "survey")
	return t, nil
}

// Cancel withdraws an Active ticket. The reason is optional.
func (s *Service) Cancel(ctx context.Context, ticketID, reason string) (*Ticket, error) {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case StatusUsed:
		return nil, ErrCannotCancelUsedTicket
	case StatusExpired, StatusCancelled:
		return nil, fmt.Errorf("%w: ticket is %s", ErrTicketNotUsable, t.Status)
	}

	t.Status = StatusCancelled
	t.CancellationReason = strings.TrimSpace(reason)
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("opentickets: cancel: %w", err)
	}
	s.metrics.ObserveTicketOperation("cancel", nil)
	s.emit(ctx, t, "cancel")
	s.logger.Info("open ticket cancelled", "ticket_id", t.ID)
	return t, nil
}

func (s *Service) emit(ctx context.Context, t *Ticket, op string) {
	if s.publisher == nil {
		return
	}
	evt := events.OpenTicketChangedV1{
		EventID:       uuid.NewString(),
		TicketID:      t.ID,
		Code:          t.Code,
		Operation:     op,
		Status:        string(t.Status),
		AppointmentID: t.GeneratedAppointmentID,
		OccurredAt:    t.UpdatedAt,
	}
	if err := s.publisher.Publish(ctx, t.ID, events.TypeOpenTicketChanged, evt); err != nil {
		s.logger.Warn("open ticket event publish failed", "ticket_id", t.ID, "operation", op, "error", err)
	}
}
