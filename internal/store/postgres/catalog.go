package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/textnorm"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

var (
	_ catalog.Store        = (*Catalog)(nil)
	_ catalog.Writer       = (*Catalog)(nil)
	_ catalog.PriceStatter = (*Catalog)(nil)
)

// textScanLimit caps the rows fetched for one TextSearch before ranking.
const textScanLimit = 2000

// prefixRunes is the length of the keyword prefixes used to prefilter text
// searches. Short prefixes keep misspelled word endings in the candidate set.
const prefixRunes = 3

const recordColumns = `id, name, description, unit_price::text, unit, region, vendor,
       category, quality_score, source, updated_at`

// Catalog implements the material catalog on the materials table.
type Catalog struct {
	pool *pgxpool.Pool
	dims int
}

// Upsert implements [catalog.Writer]. The whole batch is validated first and
// written in one implicit transaction.
func (c *Catalog) Upsert(ctx context.Context, records ...catalog.MaterialRecord) error {
	for _, r := range records {
		if err := catalog.Validate(r, c.dims); err != nil {
			return err
		}
	}
	if len(records) == 0 {
		return nil
	}

	const q = `
		INSERT INTO materials (id, name, description, unit_price, unit, unit_key, region, region_key,
		                       vendor, vendor_key, category, quality_score, search_text, embedding,
		                       source, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
		    name          = EXCLUDED.name,
		    description   = EXCLUDED.description,
		    unit_price    = EXCLUDED.unit_price,
		    unit          = EXCLUDED.unit,
		    unit_key      = EXCLUDED.unit_key,
		    region        = EXCLUDED.region,
		    region_key    = EXCLUDED.region_key,
		    vendor        = EXCLUDED.vendor,
		    vendor_key    = EXCLUDED.vendor_key,
		    category      = EXCLUDED.category,
		    quality_score = EXCLUDED.quality_score,
		    search_text   = EXCLUDED.search_text,
		    embedding     = EXCLUDED.embedding,
		    source        = EXCLUDED.source,
		    updated_at    = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, r := range records {
		var emb any
		if len(r.Embedding) > 0 {
			emb = pgvector.NewVector(r.Embedding)
		}
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		batch.Queue(q,
			r.ID, r.Name, r.Description, r.UnitPrice.String(),
			r.Unit, catalog.Key(r.Unit),
			r.Region, catalog.Key(r.Region),
			r.Vendor, catalog.Key(r.Vendor),
			string(r.Category), r.QualityScore,
			textnorm.Fold(r.Name+" "+r.Description), emb,
			r.Source, updated,
		)
	}

	br := c.pool.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: upsert material %q: %w", r.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: upsert materials: %w", err)
	}
	return nil
}

// Get returns the record with the given ID, without its embedding.
func (c *Catalog) Get(ctx context.Context, id string) (catalog.MaterialRecord, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+recordColumns+` FROM materials WHERE id = $1`, id)
	if err != nil {
		return catalog.MaterialRecord{}, fmt.Errorf("postgres: get material %q: %w", id, err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.MaterialRecord{}, fmt.Errorf("postgres: get material %q: %w", id, catalog.ErrNotFound)
		}
		return catalog.MaterialRecord{}, fmt.Errorf("postgres: get material %q: %w", id, err)
	}
	return r, nil
}

// Count returns the number of stored materials.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM materials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count materials: %w", err)
	}
	return n, nil
}

// Nearest implements [catalog.Store.Nearest] with the HNSW cosine index.
// Filters are applied in SQL.
func (c *Catalog) Nearest(ctx context.Context, vec []float32, k int, f catalog.Filters) ([]catalog.Neighbor, error) {
	if len(vec) != c.dims {
		return nil, fmt.Errorf("postgres: nearest: %w: got %d, want %d", catalog.ErrDimensionMismatch, len(vec), c.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	args := []any{pgvector.NewVector(vec)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	conditions := append([]string{"embedding IS NOT NULL"}, filterConditions(f, next)...)
	limitArg := next(k)

	q := fmt.Sprintf(`
		SELECT %s,
		       1 - (embedding <=> $1) AS similarity
		FROM   materials
		WHERE  %s
		ORDER  BY embedding <=> $1, quality_score DESC, updated_at DESC, id
		LIMIT  %s`, recordColumns, strings.Join(conditions, "\n  AND "), limitArg)

	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Neighbor, error) {
		var (
			n   catalog.Neighbor
			sim float64
		)
		r, err := scanRecordWith(row, &sim)
		if err != nil {
			return n, err
		}
		n.Record = r
		n.Similarity = catalog.ClampUnit(sim)
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest: scan rows: %w", err)
	}
	return out, nil
}

// TextSearch implements [catalog.Store.TextSearch]. Rows sharing a keyword
// prefix with query are fetched and ranked with [catalog.RankByText]. When
// the prefilter finds fewer than k rows every row matching f is ranked.
func (c *Catalog) TextSearch(ctx context.Context, query string, f catalog.Filters, k int) ([]catalog.MaterialRecord, error) {
	keywords := textnorm.Keywords(query)
	if len(keywords) == 0 || k <= 0 {
		return nil, nil
	}
	patterns := make([]string, len(keywords))
	for i, kw := range keywords {
		patterns[i] = "%" + prefix(kw, prefixRunes) + "%"
	}

	candidates, err := c.scan(ctx, f, patterns)
	if err != nil {
		return nil, err
	}
	if len(candidates) < k {
		if candidates, err = c.scan(ctx, f, nil); err != nil {
			return nil, err
		}
	}
	return catalog.RankByText(query, candidates, k), nil
}

func (c *Catalog) scan(ctx context.Context, f catalog.Filters, patterns []string) ([]catalog.MaterialRecord, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	conditions := filterConditions(f, next)
	if len(patterns) > 0 {
		conditions = append(conditions, "search_text LIKE ANY("+next(patterns)+")")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, "\n  AND ")
	}
	limitArg := next(textScanLimit)

	q := fmt.Sprintf(`
		SELECT %s
		FROM   materials
		%s
		ORDER  BY id
		LIMIT  %s`, recordColumns, where, limitArg)

	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: text search: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres: text search: scan rows: %w", err)
	}
	return out, nil
}

// TopByRegion implements [catalog.Store.TopByRegion].
func (c *Catalog) TopByRegion(ctx context.Context, region string, k int) ([]catalog.MaterialRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	where := ""
	if region != "" {
		where = "WHERE region_key = " + next(catalog.Key(region))
	}
	limitArg := next(k)

	q := fmt.Sprintf(`
		SELECT %s
		FROM   materials
		%s
		ORDER  BY quality_score DESC, updated_at DESC, id
		LIMIT  %s`, recordColumns, where, limitArg)

	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: top by region: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres: top by region: scan rows: %w", err)
	}
	return out, nil
}

// PriceStats implements [catalog.PriceStatter] with population statistics
// computed in SQL.
func (c *Catalog) PriceStats(ctx context.Context, category catalog.Category, region string) (catalog.PriceStats, error) {
	const q = `
		SELECT count(*),
		       coalesce(avg(unit_price), 0)::float8,
		       coalesce(stddev_pop(unit_price), 0)::float8
		FROM   materials
		WHERE  category = $1
		  AND  ($2 = '' OR region_key = $2)`

	stats := func(regionKey string) (catalog.PriceStats, error) {
		var s catalog.PriceStats
		if err := c.pool.QueryRow(ctx, q, string(category), regionKey).Scan(&s.Count, &s.Mean, &s.StdDev); err != nil {
			return catalog.PriceStats{}, fmt.Errorf("postgres: price stats: %w", err)
		}
		return s, nil
	}

	if key := catalog.Key(region); key != "" {
		s, err := stats(key)
		if err != nil || s.Count >= 2 {
			return s, err
		}
	}
	return stats("")
}

// filterConditions renders f as SQL conditions, binding values through next.
func filterConditions(f catalog.Filters, next func(any) string) []string {
	var conds []string
	if f.Region != "" {
		conds = append(conds, "region_key = "+next(catalog.Key(f.Region)))
	}
	if f.Unit != "" {
		conds = append(conds, "unit_key = "+next(catalog.Key(f.Unit)))
	}
	if f.MinQuality > 0 {
		conds = append(conds, "quality_score >= "+next(f.MinQuality))
	}
	if f.Vendor != "" {
		conds = append(conds, "strpos(vendor_key, "+next(catalog.Key(f.Vendor))+") > 0")
	}
	if f.MinPrice.Valid {
		conds = append(conds, "unit_price >= "+next(f.MinPrice.Decimal.String())+"::numeric")
	}
	if f.MaxPrice.Valid {
		conds = append(conds, "unit_price <= "+next(f.MaxPrice.Decimal.String())+"::numeric")
	}
	if f.Category != "" {
		conds = append(conds, "category = "+next(string(f.Category)))
	}
	return conds
}

func scanRecord(row pgx.CollectableRow) (catalog.MaterialRecord, error) {
	return scanRecordWith(row)
}

// scanRecordWith scans recordColumns followed by extra destinations.
func scanRecordWith(row pgx.CollectableRow, extra ...any) (catalog.MaterialRecord, error) {
	var (
		r        catalog.MaterialRecord
		price    string
		category string
	)
	dest := append([]any{
		&r.ID, &r.Name, &r.Description, &price, &r.Unit, &r.Region, &r.Vendor,
		&category, &r.QualityScore, &r.Source, &r.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return catalog.MaterialRecord{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return catalog.MaterialRecord{}, fmt.Errorf("unit_price %q: %w", price, err)
	}
	r.UnitPrice = p
	r.Category = catalog.Category(category)
	return r, nil
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
