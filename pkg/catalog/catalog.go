// Package catalog defines the priced material records the engine matches
// against and the Store collaborator that serves them.
//
// A Store is read-mostly: the pricing engine only queries it, and records are
// written by an external ingestion step (see [Writer] and the YAML loader).
// Several backends implement Store: the in-memory [MemStore] here, the
// Postgres/pgvector store in internal/store/postgres and the Qdrant store in
// pkg/catalog/qdrant.
//
// All implementations must be safe for concurrent use.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrWong99/renoquote/internal/textnorm"
)

// ErrNotFound is returned when a record with the requested ID does not exist.
var ErrNotFound = errors.New("material not found")

// ErrDimensionMismatch is returned when a record's embedding or a query vector
// does not have the store's configured dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Category groups materials for price statistics and quantity estimation.
type Category string

const (
	CategoryTiles      Category = "tiles"
	CategoryAdhesives  Category = "adhesives"
	CategoryPaints     Category = "paints"
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryWood       Category = "wood"
	CategoryOther      Category = "other"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryTiles, CategoryAdhesives, CategoryPaints, CategoryPlumbing,
		CategoryElectrical, CategoryWood, CategoryOther:
		return true
	}
	return false
}

// MaterialRecord is a single priced catalog entry.
type MaterialRecord struct {
	ID          string          `yaml:"id"          json:"id"`
	Name        string          `yaml:"name"        json:"name"`
	Description string          `yaml:"description" json:"description"`
	UnitPrice   decimal.Decimal `yaml:"unit_price"  json:"unit_price"`
	Unit        string          `yaml:"unit"        json:"unit"`
	Region      string          `yaml:"region"      json:"region"`
	Vendor      string          `yaml:"vendor"      json:"vendor,omitempty"`
	Category    Category        `yaml:"category"    json:"category"`

	// QualityScore is an integer grade from 1 (worst) to 10 (best).
	QualityScore int `yaml:"quality_score" json:"quality_score"`

	// Embedding is the record's vector. Seed files may omit it, in which case
	// the importer computes it from Name and Description.
	Embedding []float32 `yaml:"embedding,omitempty" json:"-"`

	Source    string    `yaml:"source"     json:"source,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// EmbeddingText is the text embedded for r: its name and description.
func (r MaterialRecord) EmbeddingText() string {
	if r.Description == "" {
		return r.Name
	}
	return r.Name + ". " + r.Description
}

// Validate checks r's invariants. dims is the configured embedding
// dimensionality; 0 skips the embedding length check, and an empty embedding
// is always accepted so that records can be embedded after loading.
func Validate(r MaterialRecord, dims int) error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if r.UnitPrice.IsNegative() {
		errs = append(errs, fmt.Errorf("unit_price %s must be >= 0", r.UnitPrice))
	}
	if r.QualityScore < 1 || r.QualityScore > 10 {
		errs = append(errs, fmt.Errorf("quality_score %d must be in [1, 10]", r.QualityScore))
	}
	if r.Category != "" && !r.Category.IsValid() {
		errs = append(errs, fmt.Errorf("category %q is not a recognised category", r.Category))
	}
	if dims > 0 && len(r.Embedding) != 0 && len(r.Embedding) != dims {
		errs = append(errs, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(r.Embedding), dims))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("catalog: record %q: %w", r.ID, errors.Join(errs...))
}

// Filters narrows catalog queries. Zero-valued fields are ignored; all
// non-zero fields are applied as AND conditions.
type Filters struct {
	// Region matches the record's region case- and accent-insensitively.
	Region string

	// Unit matches the record's unit label case-insensitively.
	Unit string

	// MinQuality keeps records whose quality score is at least this value.
	MinQuality int

	// Vendor matches records whose vendor contains this value.
	Vendor string

	// MinPrice and MaxPrice bound the unit price inclusively.
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal

	Category Category
}

// IsZero reports whether f applies no condition at all.
func (f Filters) IsZero() bool {
	return f.Region == "" && f.Unit == "" && f.MinQuality == 0 && f.Vendor == "" &&
		!f.MinPrice.Valid && !f.MaxPrice.Valid && f.Category == ""
}

// WithoutRegion returns a copy of f with the region condition removed.
func (f Filters) WithoutRegion() Filters {
	f.Region = ""
	return f
}

// Match reports whether r satisfies every condition in f.
func (f Filters) Match(r MaterialRecord) bool {
	if f.Region != "" && Key(f.Region) != Key(r.Region) {
		return false
	}
	if f.Unit != "" && Key(f.Unit) != Key(r.Unit) {
		return false
	}
	if f.MinQuality > 0 && r.QualityScore < f.MinQuality {
		return false
	}
	if f.Vendor != "" && !strings.Contains(Key(r.Vendor), Key(f.Vendor)) {
		return false
	}
	if f.MinPrice.Valid && r.UnitPrice.LessThan(f.MinPrice.Decimal) {
		return false
	}
	if f.MaxPrice.Valid && r.UnitPrice.GreaterThan(f.MaxPrice.Decimal) {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	return true
}

// Key folds s into the form used for case- and accent-insensitive equality
// of regions, units and vendors.
func Key(s string) string {
	return strings.TrimSpace(textnorm.Fold(s))
}

// Neighbor is a record returned by a vector query together with its cosine
// similarity to the query vector, clamped to [0, 1].
type Neighbor struct {
	Record     MaterialRecord
	Similarity float64
}

// Store is the catalog collaborator consumed by the similarity search.
type Store interface {
	// Nearest returns up to k records matching f, ordered by descending
	// cosine similarity to vec. Backends that cannot filter before ranking
	// may return records that do not match f; callers post-filter.
	Nearest(ctx context.Context, vec []float32, k int, f Filters) ([]Neighbor, error)

	// TextSearch returns up to k records matching f that share vocabulary
	// with query. Backends may over-approximate; the caller re-scores the
	// returned candidates.
	TextSearch(ctx context.Context, query string, f Filters, k int) ([]MaterialRecord, error)

	// TopByRegion returns up to k records of the given region (all regions
	// when region is empty), best quality first, then most recently updated.
	TopByRegion(ctx context.Context, region string, k int) ([]MaterialRecord, error)
}

// Writer is implemented by stores that accept catalog ingestion.
type Writer interface {
	// Upsert inserts or replaces records by ID.
	Upsert(ctx context.Context, records ...MaterialRecord) error
}

// PriceStats summarises historical unit prices for one category/region.
type PriceStats struct {
	Mean   float64
	StdDev float64
	Count  int
}

// PriceStatter is optionally implemented by stores that can report price
// statistics. Stores without it leave price plausibility neutral.
type PriceStatter interface {
	// PriceStats returns the unit price distribution of records in category
	// and region. Implementations fall back to the whole category when the
	// region has fewer than two samples.
	PriceStats(ctx context.Context, category Category, region string) (PriceStats, error)
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero norm yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ClampUnit clamps v into [0, 1].
func ClampUnit(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Less orders records for ranking ties: higher quality first, then most
// recently updated, then ID for determinism.
func Less(a, b MaterialRecord) bool {
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// Stats computes population mean and standard deviation of prices.
func Stats(prices []decimal.Decimal) PriceStats {
	if len(prices) == 0 {
		return PriceStats{}
	}
	var sum float64
	for _, p := range prices {
		sum += p.InexactFloat64()
	}
	mean := sum / float64(len(prices))
	var ss float64
	for _, p := range prices {
		d := p.InexactFloat64() - mean
		ss += d * d
	}
	return PriceStats{
		Mean:   mean,
		StdDev: math.Sqrt(ss / float64(len(prices))),
		Count:  len(prices),
	}
}

// CategoryStats computes the price statistics of records, which must all
// belong to one category, for region. When region is empty or has fewer
// than two samples the whole slice is used.
func CategoryStats(records []MaterialRecord, region string) PriceStats {
	var regional, all []decimal.Decimal
	for _, r := range records {
		all = append(all, r.UnitPrice)
		if region != "" && Key(r.Region) == Key(region) {
			regional = append(regional, r.UnitPrice)
		}
	}
	if len(regional) >= 2 {
		return Stats(regional)
	}
	return Stats(all)
}
