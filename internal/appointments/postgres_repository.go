package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgx used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in Postgres.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, patient_ref, branch_ref, doctor_ref, scheduled_date, scheduled_time,
	duration_minutes, consultation_type, status, promotion_applied, reschedule_count,
	cost_cents, regular_price_cents, amount_paid_cents, balance_due_cents, arrival_time,
	cancellation_reason, origin_ticket_id, status_changed_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	if a.StatusChangedAt.IsZero() {
		a.StatusChangedAt = a.CreatedAt
	}
	query := `INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.db.Exec(ctx, query,
		a.ID, a.PatientRef, a.BranchRef, a.DoctorRef, a.ScheduledDate, a.ScheduledTime,
		a.DurationMinutes, string(a.ConsultationType), string(a.Status), a.PromotionApplied, a.RescheduleCount,
		a.CostCents, a.RegularPriceCents, a.AmountPaidCents, a.BalanceDueCents, a.ArrivalTime,
		a.CancellationReason, a.OriginTicketID, a.StatusChangedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var (
		a                Appointment
		consultationType string
		status           string
		arrival          *time.Time
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PatientRef, &a.BranchRef, &a.DoctorRef, &a.ScheduledDate, &a.ScheduledTime,
		&a.DurationMinutes, &consultationType, &status, &a.PromotionApplied, &a.RescheduleCount,
		&a.CostCents, &a.RegularPriceCents, &a.AmountPaidCents, &a.BalanceDueCents, &arrival,
		&a.CancellationReason, &a.OriginTicketID, &a.StatusChangedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	a.ConsultationType = ConsultationType(consultationType)
	a.Status = Status(status)
	a.ArrivalTime = arrival
	return &a, nil
}

func (r *PostgresRepository) Update(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE appointments SET
			doctor_ref = $2, scheduled_date = $3, scheduled_time = $4, status = $5,
			promotion_applied = $6, reschedule_count = $7, cost_cents = $8,
			amount_paid_cents = $9, balance_due_cents = $10, arrival_time = $11,
			cancellation_reason = $12, status_changed_at = $13, updated_at = $14
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		a.ID, a.DoctorRef, a.ScheduledDate, a.ScheduledTime, string(a.Status),
		a.PromotionApplied, a.RescheduleCount, a.CostCents,
		a.AmountPaidCents, a.BalanceDueCents, a.ArrivalTime,
		a.CancellationReason, a.StatusChangedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) CountInSlot(ctx context.Context, branchRef, date, clock, excludeID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE branch_ref = $1 AND scheduled_date = $2 AND scheduled_time = $3
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		  AND id <> $4
	`
	var n int
	if err := r.db.QueryRow(ctx, query, branchRef, date, clock, excludeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: count slot: %w", err)
	}
	return n, nil
}
