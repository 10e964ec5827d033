package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlExtension enables pgvector. Requires superuser or the extension to be
// pre-installed by a DBA.
const ddlExtension = `CREATE EXTENSION IF NOT EXISTS vector;`

// ddlMaterials returns the DDL for the materials table with the given
// embedding dimensionality. The folded *_key columns back the case- and
// accent-insensitive filters.
func ddlMaterials(dims int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS materials (
    id            TEXT          PRIMARY KEY,
    name          TEXT          NOT NULL,
    description   TEXT          NOT NULL DEFAULT '',
    unit_price    NUMERIC(12,2) NOT NULL,
    unit          TEXT          NOT NULL DEFAULT '',
    unit_key      TEXT          NOT NULL DEFAULT '',
    region        TEXT          NOT NULL DEFAULT '',
    region_key    TEXT          NOT NULL DEFAULT '',
    vendor        TEXT          NOT NULL DEFAULT '',
    vendor_key    TEXT          NOT NULL DEFAULT '',
    category      TEXT          NOT NULL DEFAULT '',
    quality_score INT           NOT NULL,
    search_text   TEXT          NOT NULL DEFAULT '',
    embedding     vector(%d),
    source        TEXT          NOT NULL DEFAULT '',
    updated_at    TIMESTAMPTZ   NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_materials_embedding
    ON materials USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_materials_region_key
    ON materials (region_key, quality_score DESC, updated_at DESC);

CREATE INDEX IF NOT EXISTS idx_materials_category
    ON materials (category, region_key);
`, dims)
}

const ddlQuotes = `
CREATE TABLE IF NOT EXISTS quotes (
    id          TEXT        PRIMARY KEY,
    version     INT         NOT NULL DEFAULT 1,
    supersedes  TEXT        NOT NULL DEFAULT '',
    user_type   TEXT        NOT NULL,
    region_key  TEXT        NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL,
    document    JSONB       NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quotes_created_at ON quotes (created_at DESC);
`

const ddlFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    id          TEXT        PRIMARY KEY,
    quote_id    TEXT        NOT NULL,
    user_type   TEXT        NOT NULL,
    verdict     TEXT        NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    document    JSONB       NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_quote_id   ON feedback (quote_id);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback (created_at);
`

// Migrate creates or updates the schema. It is idempotent.
//
// dims fixes the vector column size on first creation. Changing it later
// requires dropping the materials table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("postgres: migrate: embedding dimensions must be > 0, got %d", dims)
	}
	stmts := []string{
		ddlExtension,
		ddlMaterials(dims),
		ddlQuotes,
		ddlFeedback,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}
