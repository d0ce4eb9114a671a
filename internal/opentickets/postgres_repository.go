package opentickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgx used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores tickets in the open_tickets table.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("opentickets: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const ticketColumns = `id, code, patient_ref, branch_ref, specialty, preferred_doctor,
	issue_date, valid_from, valid_until, validity_days, status, used_at,
	generated_appointment_id, arrival_time, origin_appointment_id, prior_visit_notes,
	estimated_cost_cents, requires_payment, survey_completed, satisfaction_rating,
	survey_comments, cancellation_reason, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, t *Ticket) error {
	query := `INSERT INTO open_tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`
	_, err := r.db.Exec(ctx, query,
		t.ID, t.Code, t.PatientRef, t.BranchRef, t.Specialty, t.PreferredDoctor,
		t.IssueDate, t.ValidFrom, t.ValidUntil, t.ValidityDays, string(t.Status), t.UsedAt,
		t.GeneratedAppointmentID, t.ArrivalTime, t.OriginAppointmentID, t.PriorVisitNotes,
		t.EstimatedCostCents, t.RequiresPayment, t.SurveyCompleted, t.SatisfactionRating,
		t.SurveyComments, t.CancellationReason, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("opentickets: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM open_tickets WHERE id = $1`
	t, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opentickets: select failed: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Update(ctx context.Context, t *Ticket) error {
	query := `
		UPDATE open_tickets SET
			status = $2, used_at = $3, generated_appointment_id = $4, arrival_time = $5,
			survey_completed = $6, satisfaction_rating = $7, survey_comments = $8,
			cancellation_reason = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		t.ID, string(t.Status), t.UsedAt, t.GeneratedAppointmentID, t.ArrivalTime,
		t.SurveyCompleted, t.SatisfactionRating, t.SurveyComments,
		t.CancellationReason, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("opentickets: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM open_tickets
		WHERE status = 'active' AND valid_until < $1
		ORDER BY valid_until
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("opentickets: list expirable: %w", err)
	}
	defer rows.Close()

	var out []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("opentickets: scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTicket(row pgx.Row) (*Ticket, error) {
	var (
		t      Ticket
		status string
	)
	err := row.Scan(
		&t.ID, &t.Code, &t.PatientRef, &t.BranchRef, &t.Specialty, &t.PreferredDoctor,
		&t.IssueDate, &t.ValidFrom, &t.ValidUntil, &t.ValidityDays, &status, &t.UsedAt,
		&t.GeneratedAppointmentID, &t.ArrivalTime, &t.OriginAppointmentID, &t.PriorVisitNotes,
		&t.EstimatedCostCents, &t.RequiresPayment, &t.SurveyCompleted, &t.SatisfactionRating,
		&t.SurveyComments, &t.CancellationReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}
