package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/renoquote/internal/feedback"
)

var _ feedback.Repository = (*Feedback)(nil)

// Feedback implements the append-only [feedback.Repository]. Entries are
// inserted and never updated or deleted.
type Feedback struct {
	pool *pgxpool.Pool
}

// Append implements [feedback.Repository.Append].
func (s *Feedback) Append(ctx context.Context, e feedback.Entry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("postgres: append feedback: marshal: %w", err)
	}
	const stmt = `
		INSERT INTO feedback (id, quote_id, user_type, verdict, created_at, document)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, stmt,
		e.ID, e.QuoteID, string(e.UserType), string(e.Verdict), e.CreatedAt, doc,
	); err != nil {
		return fmt.Errorf("postgres: append feedback %q: %w", e.ID, err)
	}
	return nil
}

// List implements [feedback.Repository.List].
func (s *Feedback) List(ctx context.Context, f feedback.Filter) ([]feedback.Entry, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	var conditions []string
	if f.QuoteID != "" {
		conditions = append(conditions, "quote_id = "+next(f.QuoteID))
	}
	if f.UserType != "" {
		conditions = append(conditions, "user_type = "+next(string(f.UserType)))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "created_at >= "+next(f.Since))
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "created_at <= "+next(f.Until))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	q := fmt.Sprintf(`
		SELECT document
		FROM   feedback
		%s
		ORDER  BY created_at, id`, where)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list feedback: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (feedback.Entry, error) {
		var (
			doc []byte
			e   feedback.Entry
		)
		if err := row.Scan(&doc); err != nil {
			return e, err
		}
		return e, json.Unmarshal(doc, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list feedback: scan rows: %w", err)
	}
	return out, nil
}
