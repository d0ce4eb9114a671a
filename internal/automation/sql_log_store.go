package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SQLLogStore appends automation logs to the automation_logs table. Rows are
// never updated or deleted.
type SQLLogStore struct {
	db *sql.DB
}

func NewSQLLogStore(db *sql.DB) *SQLLogStore {
	return &SQLLogStore{db: db}
}

func (s *SQLLogStore) Append(ctx context.Context, l Log) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	snapshot, err := json.Marshal(l.Snapshot)
	if err != nil {
		return fmt.Errorf("automation: encode snapshot: %w", err)
	}
	query := `
		INSERT INTO automation_logs (
			id, rule_id, rule_name, subject_id, subject_name,
			action_summary, outcome, message, snapshot, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		l.ID,
		l.RuleID,
		l.RuleName,
		l.SubjectID,
		l.SubjectName,
		l.ActionSummary,
		string(l.Outcome),
		l.Message,
		snapshot,
		l.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("automation: append log: %w", err)
	}
	return nil
}

// List returns matching logs newest first.
func (s *SQLLogStore) List(ctx context.Context, f LogFilter) ([]Log, error) {
	var (
		where []string
		args  []any
	)
	if f.RuleID != "" {
		args = append(args, f.RuleID)
		where = append(where, fmt.Sprintf("rule_id = $%d", len(args)))
	}
	if f.SubjectID != "" {
		args = append(args, f.SubjectID)
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	query := `SELECT id, rule_id, rule_name, subject_id, subject_name, action_summary, outcome, message, snapshot, created_at FROM automation_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("automation: list logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var (
			l        Log
			outcome  string
			snapshot []byte
		)
		if err := rows.Scan(&l.ID, &l.RuleID, &l.RuleName, &l.SubjectID, &l.SubjectName, &l.ActionSummary, &outcome, &l.Message, &snapshot, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("automation: scan log: %w", err)
		}
		l.Outcome = Outcome(outcome)
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &l.Snapshot); err != nil {
				return nil, fmt.Errorf("automation: decode snapshot: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
