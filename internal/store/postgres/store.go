// Package postgres stores the material catalog, issued quotes and the
// feedback log in PostgreSQL, with pgvector serving the embedding search.
//
// One [Store] owns the connection pool. The catalog, quote and feedback
// views returned by [Store.Catalog], [Store.Quotes] and [Store.Feedback]
// share it and are safe for concurrent use.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store is the PostgreSQL backend.
type Store struct {
	pool     *pgxpool.Pool
	catalog  *Catalog
	quotes   *Quotes
	feedback *Feedback
}

// NewStore connects to dsn, registers the pgvector types on every
// connection and runs [Migrate]. dims must match the embedder's output
// dimensionality.
func NewStore(ctx context.Context, dsn string, dims int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool:     pool,
		catalog:  &Catalog{pool: pool, dims: dims},
		quotes:   &Quotes{pool: pool},
		feedback: &Feedback{pool: pool},
	}, nil
}

// Catalog returns the material catalog view.
func (s *Store) Catalog() *Catalog { return s.catalog }

// Quotes returns the quote repository.
func (s *Store) Quotes() *Quotes { return s.quotes }

// Feedback returns the feedback log.
func (s *Store) Feedback() *Feedback { return s.feedback }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}
