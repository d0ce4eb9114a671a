package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ruleDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRuleStore keeps each rule definition as JSONB.
type PostgresRuleStore struct {
	db ruleDB
}

func NewPostgresRuleStore(pool *pgxpool.Pool) *PostgresRuleStore {
	if pool == nil {
		panic("automation: pgx pool required")
	}
	return &PostgresRuleStore{db: pool}
}

func newPostgresRuleStoreWithDB(db ruleDB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

func (s *PostgresRuleStore) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.Query(ctx, `SELECT definition FROM automation_rules ORDER BY rule_order, id`)
	if err != nil {
		return nil, fmt.Errorf("automation: list rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("automation: scan rule: %w", err)
		}
		var r Rule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("automation: decode rule: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT definition FROM automation_rules WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("automation: get rule: %w", err)
	}
	var r Rule
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("automation: decode rule: %w", err)
	}
	return &r, nil
}

func (s *PostgresRuleStore) Save(ctx context.Context, r *Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("automation: encode rule: %w", err)
	}
	query := `
		INSERT INTO automation_rules (id, name, active, priority, rule_order, definition, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			priority = EXCLUDED.priority,
			rule_order = EXCLUDED.rule_order,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, r.ID, r.Name, r.Active, string(r.Priority), r.Order, data, r.UpdatedAt); err != nil {
		return fmt.Errorf("automation: save rule: %w", err)
	}
	return nil
}
