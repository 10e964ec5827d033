package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

var _ quote.Repository = (*Quotes)(nil)

// Quotes implements [quote.Repository]. Each quote is stored whole as a
// JSONB document; the indexed columns only serve lookups.
type Quotes struct {
	pool *pgxpool.Pool
}

// Save implements [quote.Repository.Save]. Rows are never updated.
func (s *Quotes) Save(ctx context.Context, q quote.Quote) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("postgres: save quote %q: marshal: %w", q.ID, err)
	}
	const stmt = `
		INSERT INTO quotes (id, version, supersedes, user_type, region_key, created_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, stmt,
		q.ID, q.Version, q.Supersedes, string(q.UserType), catalog.Key(q.Region), q.CreatedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("postgres: save quote %q: %w", q.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: save quote %q: %w", q.ID, quote.ErrAlreadyExists)
	}
	return nil
}

// Get implements [quote.Repository.Get].
func (s *Quotes) Get(ctx context.Context, id string) (quote.Quote, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM quotes WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return quote.Quote{}, fmt.Errorf("postgres: get quote %q: %w", id, quote.ErrNotFound)
	}
	if err != nil {
		return quote.Quote{}, fmt.Errorf("postgres: get quote %q: %w", id, err)
	}
	var q quote.Quote
	if err := json.Unmarshal(doc, &q); err != nil {
		return quote.Quote{}, fmt.Errorf("postgres: get quote %q: unmarshal: %w", id, err)
	}
	return q, nil
}

// Exists implements [quote.Repository.Exists].
func (s *Quotes) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quotes WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: quote exists %q: %w", id, err)
	}
	return ok, nil
}

// List implements [quote.Repository.List].
func (s *Quotes) List(ctx context.Context, opts quote.ListOptions) ([]quote.Quote, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	var conditions []string
	if opts.UserType != "" {
		conditions = append(conditions, "user_type = "+next(string(opts.UserType)))
	}
	if opts.Region != "" {
		conditions = append(conditions, "region_key = "+next(catalog.Key(opts.Region)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, "\n  AND ")
	}
	limit := ""
	if opts.Limit > 0 {
		limit = "LIMIT " + next(opts.Limit)
	}

	q := fmt.Sprintf(`
		SELECT document
		FROM   quotes
		%s
		ORDER  BY created_at DESC, id DESC
		%s`, where, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quotes: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (quote.Quote, error) {
		var (
			doc []byte
			q   quote.Quote
		)
		if err := row.Scan(&doc); err != nil {
			return q, err
		}
		return q, json.Unmarshal(doc, &q)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list quotes: scan rows: %w", err)
	}
	return out, nil
}
