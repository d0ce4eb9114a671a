package leads

import (
	"context"
	"encoding/json"
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
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db  DB
	now func() time.Time
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return NewPostgresRepositoryWithDB(pool)
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(db DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const leadColumns = `id, name, email, phone, message, source, channel, status, status_changed_at,
	tags, estimated_value, attempts, last_contact_at, assigned_to, messaging_blocked,
	custom_fields, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := newLead(uuid.New().String(), req, r.now())
	fields, err := json.Marshal(lead.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("leads: encode custom fields: %w", err)
	}

	query := `INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	if _, err := r.db.Exec(ctx, query,
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Message, lead.Source, lead.Channel,
		lead.Status, lead.StatusChangedAt, lead.Tags, lead.EstimatedValue, lead.Attempts,
		lead.LastContactAt, lead.AssignedTo, lead.MessagingBlocked, fields,
		lead.CreatedAt, lead.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*Lead, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, f.Status, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// Save writes the engine-mutable columns.
func (r *PostgresRepository) Save(ctx context.Context, l *Lead) error {
	fields, err := json.Marshal(l.CustomFields)
	if err != nil {
		return fmt.Errorf("leads: encode custom fields: %w", err)
	}
	query := `
		UPDATE leads SET
			status = $2, status_changed_at = $3, tags = $4, attempts = $5,
			last_contact_at = $6, assigned_to = $7, messaging_blocked = $8,
			custom_fields = $9, updated_at = $10
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		l.ID, l.Status, l.StatusChangedAt, l.Tags, l.Attempts,
		l.LastContactAt, l.AssignedTo, l.MessagingBlocked, fields, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead   Lead
		fields []byte
	)
	if err := row.Scan(
		&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Message, &lead.Source, &lead.Channel,
		&lead.Status, &lead.StatusChangedAt, &lead.Tags, &lead.EstimatedValue, &lead.Attempts,
		&lead.LastContactAt, &lead.AssignedTo, &lead.MessagingBlocked, &fields,
		&lead.CreatedAt, &lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &lead.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields: %w", err)
		}
	}
	if lead.Tags == nil {
		lead.Tags = []string{}
	}
	return &lead, nil
}
