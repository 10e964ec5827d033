package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/resilience"
	"github.com/MrWong99/renoquote/internal/textnorm"
	"github.com/MrWong99/renoquote/pkg/catalog"
)

// query is the per-request state shared by the tiers of one search.
type query struct {
	req  Request
	text string

	// region is the pricing region of the request, with city aliases
	// resolved.
	region string

	// stats caches category price statistics for the request.
	stats map[catalog.Category]catalog.PriceStats
}

var (
	errNoEmbedder   = errors.New("no embedding provider configured")
	errBelowFloor   = fmt.Errorf("no match above similarity floor: %w", resilience.ErrDeclined)
	errEmptyCatalog = fmt.Errorf("catalog has no records to offer: %w", resilience.ErrDeclined)
)

// ── Semantic ──────────────────────────────────────────────────────────────────

func (s *Searcher) semantic(ctx context.Context, q *query) ([]Match, error) {
	vec, err := s.embed(ctx, q.text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", resilience.ErrDeclined, err)
	}

	pool := max(s.cfg.CandidatePool, q.req.Limit)
	var kept []catalog.Neighbor
	for {
		neighbors, err := s.store.Nearest(ctx, vec, pool, q.req.Filters)
		if err != nil {
			return nil, fmt.Errorf("semantic: nearest: %w", err)
		}
		kept = kept[:0]
		for _, n := range neighbors {
			if n.Similarity >= s.cfg.MinSimilarity && q.req.Filters.Match(n.Record) {
				kept = append(kept, n)
			}
		}
		exhausted := len(neighbors) < pool ||
			neighbors[len(neighbors)-1].Similarity < s.cfg.MinSimilarity
		if len(kept) >= q.req.Limit || exhausted || pool >= s.cfg.MaxCandidatePool {
			break
		}
		pool = min(pool*4, s.cfg.MaxCandidatePool)
	}
	if len(kept) == 0 {
		return nil, errBelowFloor
	}

	out := make([]Match, len(kept))
	for i, n := range kept {
		out[i] = s.score(ctx, q, n.Record, n.Similarity, TierSemantic)
	}
	return out, nil
}

// embed vectorises text through the rate limiter and the embedding breaker,
// bounded by EmbedTimeout. Every failure wraps [ErrEmbeddingUnavailable].
func (s *Searcher) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, errNoEmbedder)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.metrics.RecordEmbeddingError(ctx, "rate_limited")
			return nil, fmt.Errorf("%w: rate limited: %w", ErrEmbeddingUnavailable, err)
		}
	}

	start := time.Now()
	var vec []float32
	err := s.embedBreaker.Execute(func() error {
		v, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return errors.New("empty embedding")
		}
		vec = v
		return nil
	})
	s.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordEmbeddingError(ctx, embedErrorKind(err))
		observe.Logger(ctx).Warn("query embedding failed, degrading", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

func embedErrorKind(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// ── Fuzzy ─────────────────────────────────────────────────────────────────────

func (s *Searcher) fuzzy(ctx context.Context, q *query) ([]Match, error) {
	pool := max(s.cfg.CandidatePool, q.req.Limit)
	recs, err := s.store.TextSearch(ctx, q.text, q.req.Filters, pool)
	if err != nil {
		return nil, fmt.Errorf("fuzzy: text search: %w", err)
	}

	var out []Match
	for _, r := range recs {
		if !q.req.Filters.Match(r) {
			continue
		}
		if sim := s.fuzzyScore(q.text, r); sim >= s.cfg.MinSimilarity {
			out = append(out, s.score(ctx, q, r, sim, TierFuzzy))
		}
	}
	if len(out) == 0 {
		return nil, errBelowFloor
	}
	return out, nil
}

// fuzzyScore rates a record against query: 0.9 when the folded query occurs
// verbatim in the record's name or description, otherwise 0.7 times the
// phonetic keyword coverage.
func (s *Searcher) fuzzyScore(query string, r catalog.MaterialRecord) float64 {
	text := r.Name + " " + r.Description
	if needle := strings.TrimSpace(textnorm.Fold(query)); needle != "" &&
		strings.Contains(textnorm.Fold(text), needle) {
		return 0.9
	}
	return 0.7 * s.matcher.Coverage(textnorm.Keywords(query), textnorm.Tokens(text))
}

// ── Emergency ─────────────────────────────────────────────────────────────────

// emergency returns the best-rated records of the request region, relaxing
// first the filters and then the region until something is found.
func (s *Searcher) emergency(ctx context.Context, q *query) ([]Match, error) {
	region := q.region
	pool := max(s.cfg.CandidatePool, q.req.Limit)
	rest := q.req.Filters.WithoutRegion()

	type attempt struct {
		region  string
		filters catalog.Filters
	}
	attempts := []attempt{{region, rest}}
	if !rest.IsZero() {
		attempts = append(attempts, attempt{region, catalog.Filters{}})
	}
	if region != "" {
		attempts = append(attempts, attempt{"", catalog.Filters{}})
	}

	for _, a := range attempts {
		recs, err := s.store.TopByRegion(ctx, a.region, pool)
		if err != nil {
			return nil, fmt.Errorf("emergency: top by region: %w", err)
		}
		var out []Match
		for _, r := range recs {
			if a.filters.Match(r) {
				out = append(out, s.score(ctx, q, r, 0, TierEmergency))
			}
		}
		if len(out) > 0 {
			observe.Logger(ctx).Info("search served by emergency tier",
				"region", a.region,
				"filters_relaxed", a.filters.IsZero() && !rest.IsZero(),
			)
			return out, nil
		}
	}
	return nil, errEmptyCatalog
}

// ── Scoring ───────────────────────────────────────────────────────────────────

func (s *Searcher) score(ctx context.Context, q *query, r catalog.MaterialRecord, sim float64, t Tier) Match {
	conf := s.scorer.Score(confidence.Input{
		Similarity: sim,
		Record:     r,
		Region:     q.req.region(),
		Stats:      s.priceStats(ctx, q, r.Category),
	})
	if t == TierEmergency && conf.Score > s.cfg.DegradedCeiling {
		conf.Score = s.cfg.DegradedCeiling
		conf.Tier = confidence.TierFor(conf.Score)
	}
	return Match{Record: r, Similarity: catalog.ClampUnit(sim), Confidence: conf, Tier: t}
}

// priceStats returns the price distribution of category, fetching it at
// most once per request. Lookup failures leave the price signal neutral.
func (s *Searcher) priceStats(ctx context.Context, q *query, category catalog.Category) catalog.PriceStats {
	if s.stats == nil {
		return catalog.PriceStats{}
	}
	if st, ok := q.stats[category]; ok {
		return st
	}
	st, err := s.stats.PriceStats(ctx, category, q.region)
	if err != nil {
		observe.Logger(ctx).Debug("price stats unavailable", "category", category, "err", err)
		st = catalog.PriceStats{}
	}
	q.stats[category] = st
	return st
}

func sortMatches(ms []Match) {
	slices.SortStableFunc(ms, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		switch {
		case catalog.Less(a.Record, b.Record):
			return -1
		case catalog.Less(b.Record, a.Record):
			return 1
		}
		return 0
	})
}
