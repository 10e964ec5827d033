// Package search finds catalog materials for a free-text query.
//
// A [Searcher] walks three tiers in order and returns the first non-empty
// answer:
//
//  1. semantic: the query is embedded and matched against record vectors;
//  2. fuzzy: keyword and phonetic matching against names and descriptions;
//  3. emergency: the best-rated records of the region, or of the whole
//     catalog, with confidence capped so their tier is always LOW.
//
// Embedding and store failures degrade to the next tier instead of failing
// the request. Only a catalog with nothing to offer at all surfaces
// [ErrStoreUnavailable].
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/phonetic"
	"github.com/MrWong99/renoquote/internal/resilience"
	"github.com/MrWong99/renoquote/pkg/catalog"
	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
	"github.com/MrWong99/renoquote/pkg/types"
)

var (
	// ErrInvalidQuery is returned (wrapped in a [types.ValidationError]) for
	// an empty query or malformed filters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidLimit is returned (wrapped in a [types.ValidationError]) for
	// a limit outside [1, MaxLimit].
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrStoreUnavailable is returned when no tier could produce a result.
	ErrStoreUnavailable = errors.New("search: catalog store unavailable")

	// ErrEmbeddingUnavailable marks a semantic tier that could not embed the
	// query. It never leaves [Searcher.Search]; the search degrades instead.
	ErrEmbeddingUnavailable = errors.New("search: embedding unavailable")
)

// Tier names the search strategy that produced a match.
type Tier string

const (
	TierSemantic  Tier = "semantic"
	TierFuzzy     Tier = "fuzzy"
	TierEmergency Tier = "emergency"
)

// Request is a single material search.
type Request struct {
	// Query is the free-text material description. Required.
	Query string

	// Filters restrict the candidate set.
	Filters catalog.Filters

	// Limit is the maximum number of matches, between 1 and Config.MaxLimit.
	Limit int

	// ScoreRegion is the region used for confidence scoring and for the
	// emergency tier when Filters.Region is empty. Quote assembly sets it
	// instead of Filters.Region so that the region ranks without excluding.
	ScoreRegion string
}

// region returns the region that scores candidates.
func (r Request) region() string {
	if r.Filters.Region != "" {
		return r.Filters.Region
	}
	return r.ScoreRegion
}

// Match is a scored catalog record.
type Match struct {
	Record     catalog.MaterialRecord `json:"record"`
	Similarity float64                `json:"similarity"`
	Confidence confidence.Result      `json:"confidence"`
	Tier       Tier                   `json:"-"`
}

// Result is the outcome of a search.
type Result struct {
	// Matches are ordered by non-increasing similarity, ties broken by
	// quality, recency and ID.
	Matches []Match

	// Tier is the tier that answered.
	Tier Tier

	// Degraded is true when the semantic tier did not answer.
	Degraded bool
}

// Config tunes a [Searcher]. Zero fields take the defaults of
// [DefaultConfig].
type Config struct {
	// MinSimilarity is the floor a semantic or fuzzy match must reach.
	MinSimilarity float64

	// MaxLimit is the largest accepted Request.Limit.
	MaxLimit int

	// CandidatePool is the initial number of neighbours fetched from the
	// store; it grows fourfold up to MaxCandidatePool while post-filtering
	// leaves too few candidates.
	CandidatePool    int
	MaxCandidatePool int

	// EmbedTimeout bounds each embedding call, including any wait on the
	// rate limiter.
	EmbedTimeout time.Duration

	// EmbedRateLimit is the sustained embedding rate in requests per
	// second; zero disables limiting. EmbedBurst defaults to 1.
	EmbedRateLimit float64
	EmbedBurst     int

	// DegradedCeiling caps the confidence of emergency matches.
	DegradedCeiling float64

	// Breaker configures the embedding breaker and the per-tier breakers.
	Breaker resilience.CircuitBreakerConfig
}

// DefaultConfig returns the production search configuration.
func DefaultConfig() Config {
	return Config{
		MinSimilarity:    0.3,
		MaxLimit:         20,
		CandidatePool:    20,
		MaxCandidatePool: 200,
		EmbedTimeout:     2 * time.Second,
		DegradedCeiling:  0.45,
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = d.MinSimilarity
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = d.MaxLimit
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = d.CandidatePool
	}
	if c.MaxCandidatePool < c.CandidatePool {
		c.MaxCandidatePool = max(d.MaxCandidatePool, c.CandidatePool)
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.EmbedBurst <= 0 {
		c.EmbedBurst = 1
	}
	if c.DegradedCeiling <= 0 {
		c.DegradedCeiling = d.DegradedCeiling
	}
	return c
}

// Option is a functional option for [New].
type Option func(*Searcher)

// WithEmbedder enables the semantic tier. Without an embedder every search
// starts at the fuzzy tier.
func WithEmbedder(p embeddings.Provider) Option {
	return func(s *Searcher) { s.embedder = p }
}

// WithPriceStats overrides where category price statistics come from. By
// default the store is used when it implements [catalog.PriceStatter].
func WithPriceStats(ps catalog.PriceStatter) Option {
	return func(s *Searcher) { s.stats = ps }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

// tierFunc is one search strategy. It returns scored matches or an error;
// errors wrapping [resilience.ErrDeclined] mean "nothing good enough here".
type tierFunc func(ctx context.Context, q *query) ([]Match, error)

// Searcher runs tiered material searches. It is safe for concurrent use.
type Searcher struct {
	store    catalog.Store
	stats    catalog.PriceStatter
	embedder embeddings.Provider
	scorer   *confidence.Scorer
	metrics  *observe.Metrics
	matcher  *phonetic.Matcher
	cfg      Config

	limiter      *rate.Limiter
	embedBreaker *resilience.CircuitBreaker
	tiers        *resilience.FallbackGroup[tierFunc]
}

// New creates a [Searcher] over store, scoring with scorer.
func New(store catalog.Store, scorer *confidence.Scorer, cfg Config, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, errors.New("search: store must not be nil")
	}
	if scorer == nil {
		return nil, errors.New("search: scorer must not be nil")
	}
	s := &Searcher{
		store:   store,
		scorer:  scorer,
		matcher: phonetic.New(),
		cfg:     cfg.withDefaults(),
	}
	if ps, ok := store.(catalog.PriceStatter); ok {
		s.stats = ps
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.cfg.EmbedRateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.cfg.EmbedRateLimit), s.cfg.EmbedBurst)
	}

	breaker := s.cfg.Breaker
	userHook := breaker.OnStateChange
	breaker.OnStateChange = func(name string, from, to resilience.State) {
		s.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		if userHook != nil {
			userHook(name, from, to)
		}
	}

	embedCfg := breaker
	embedCfg.Name = "embedding"
	s.embedBreaker = resilience.NewCircuitBreaker(embedCfg)

	s.tiers = resilience.NewFallbackGroup(s.instrument(TierSemantic, s.semantic), string(TierSemantic),
		resilience.FallbackConfig{CircuitBreaker: breaker})
	s.tiers.AddFallback(string(TierFuzzy), s.instrument(TierFuzzy, s.fuzzy))
	s.tiers.AddFallback(string(TierEmergency), s.instrument(TierEmergency, s.emergency))
	return s, nil
}

// Config returns the effective configuration.
func (s *Searcher) Config() Config { return s.cfg }

// Search runs req through the tiers and returns at most req.Limit matches.
func (s *Searcher) Search(ctx context.Context, req Request) (Result, error) {
	if err := s.validate(req); err != nil {
		return Result{}, err
	}

	ctx, span := observe.StartSpan(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("search.limit", req.Limit),
		attribute.String("search.region", req.region()),
	)

	// Records carry region names; a city filter matches its region.
	req.Filters.Region = s.scorer.Area(req.Filters.Region)

	start := time.Now()
	q := &query{
		req:    req,
		text:   strings.TrimSpace(req.Query),
		region: s.scorer.Area(req.region()),
		stats:  make(map[catalog.Category]catalog.PriceStats),
	}
	matches, err := resilience.ExecuteWithResult(s.tiers, func(fn tierFunc) ([]Match, error) {
		return fn(ctx, q)
	})
	if err != nil {
		s.metrics.RecordSearch(ctx, "none", "error", time.Since(start).Seconds())
		observe.Fail(span, err, "no tier answered")
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	sortMatches(matches)
	if len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	res := Result{Matches: matches, Tier: matches[0].Tier}
	res.Degraded = res.Tier != TierSemantic

	status := "ok"
	if res.Degraded {
		status = "degraded"
	}
	s.metrics.RecordSearch(ctx, string(res.Tier), status, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("search.tier", string(res.Tier)),
		attribute.Int("search.matches", len(matches)),
	)
	observe.Logger(ctx).Debug("material search answered",
		"tier", res.Tier,
		"matches", len(matches),
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Searcher) validate(req Request) error {
	var errs []error
	if strings.TrimSpace(req.Query) == "" {
		errs = append(errs, types.NewValidationError("query", req.Query, ErrInvalidQuery))
	}
	if req.Limit < 1 || req.Limit > s.cfg.MaxLimit {
		errs = append(errs, types.NewValidationError("limit", fmt.Sprint(req.Limit), ErrInvalidLimit))
	}
	f := req.Filters
	if f.MinQuality < 0 || f.MinQuality > 10 {
		errs = append(errs, types.NewValidationError("quality_score", fmt.Sprint(f.MinQuality), ErrInvalidQuery))
	}
	if f.MinPrice.Valid && f.MaxPrice.Valid && f.MinPrice.Decimal.GreaterThan(f.MaxPrice.Decimal) {
		errs = append(errs, types.NewValidationError("max_price", f.MaxPrice.Decimal.String(), ErrInvalidQuery))
	}
	if f.Category != "" && !f.Category.IsValid() {
		errs = append(errs, types.NewValidationError("category", string(f.Category), ErrInvalidQuery))
	}
	return errors.Join(errs...)
}

// instrument records the outcome of every attempt of a tier.
func (s *Searcher) instrument(t Tier, fn tierFunc) tierFunc {
	return func(ctx context.Context, q *query) ([]Match, error) {
		matches, err := fn(ctx, q)
		outcome := "hit"
		switch {
		case errors.Is(err, resilience.ErrDeclined):
			outcome = "declined"
		case err != nil:
			outcome = "failed"
		}
		s.metrics.RecordTierOutcome(ctx, string(t), outcome)
		return matches, err
	}
}
