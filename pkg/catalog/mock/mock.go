// Package mock provides a test double for the catalog.Store interface.
//
// Store returns pre-canned results per method and records every call so tests
// can assert which degradation tiers touched the catalog and with what
// filters.
//
// Example:
//
//	s := &mock.Store{
//	    NearestResult: []catalog.Neighbor{{Record: rec, Similarity: 0.92}},
//	    TextSearchErr: errors.New("boom"),
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/renoquote/pkg/catalog"
)

// NearestCall records a single invocation of Nearest.
type NearestCall struct {
	Vec     []float32
	K       int
	Filters catalog.Filters
}

// TextSearchCall records a single invocation of TextSearch.
type TextSearchCall struct {
	Query   string
	Filters catalog.Filters
	K       int
}

// TopByRegionCall records a single invocation of TopByRegion.
type TopByRegionCall struct {
	Region string
	K      int
}

// Store is a mock implementation of catalog.Store and catalog.PriceStatter.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NearestResult is returned by Nearest, truncated to k.
	NearestResult []catalog.Neighbor
	NearestErr    error

	// NearestFunc, when set, replaces NearestResult and NearestErr.
	NearestFunc func(vec []float32, k int, f catalog.Filters) ([]catalog.Neighbor, error)

	// TextSearchResult is returned by TextSearch, truncated to k.
	TextSearchResult []catalog.MaterialRecord
	TextSearchErr    error

	// TopByRegionFunc, when set, replaces TopByRegionResult and
	// TopByRegionErr.
	TopByRegionFunc   func(region string, k int) ([]catalog.MaterialRecord, error)
	TopByRegionResult []catalog.MaterialRecord
	TopByRegionErr    error

	// PriceStatsResult is returned by PriceStats for every category.
	PriceStatsResult catalog.PriceStats
	PriceStatsErr    error

	// --- Call records ---

	NearestCalls     []NearestCall
	TextSearchCalls  []TextSearchCall
	TopByRegionCalls []TopByRegionCall
	PriceStatsCalls  int
}

var (
	_ catalog.Store        = (*Store)(nil)
	_ catalog.PriceStatter = (*Store)(nil)
)

// Nearest records the call and returns the configured result.
func (s *Store) Nearest(_ context.Context, vec []float32, k int, f catalog.Filters) ([]catalog.Neighbor, error) {
	s.mu.Lock()
	s.NearestCalls = append(s.NearestCalls, NearestCall{Vec: vec, K: k, Filters: f})
	fn, res, err := s.NearestFunc, s.NearestResult, s.NearestErr
	s.mu.Unlock()
	if fn != nil {
		return fn(vec, k, f)
	}
	if err != nil {
		return nil, err
	}
	return head(res, k), nil
}

// TextSearch records the call and returns TextSearchResult, TextSearchErr.
func (s *Store) TextSearch(_ context.Context, query string, f catalog.Filters, k int) ([]catalog.MaterialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TextSearchCalls = append(s.TextSearchCalls, TextSearchCall{Query: query, Filters: f, K: k})
	if s.TextSearchErr != nil {
		return nil, s.TextSearchErr
	}
	return head(s.TextSearchResult, k), nil
}

// TopByRegion records the call and returns the configured result.
func (s *Store) TopByRegion(_ context.Context, region string, k int) ([]catalog.MaterialRecord, error) {
	s.mu.Lock()
	s.TopByRegionCalls = append(s.TopByRegionCalls, TopByRegionCall{Region: region, K: k})
	fn, res, err := s.TopByRegionFunc, s.TopByRegionResult, s.TopByRegionErr
	s.mu.Unlock()
	if fn != nil {
		return fn(region, k)
	}
	if err != nil {
		return nil, err
	}
	return head(res, k), nil
}

// PriceStats records the call and returns PriceStatsResult, PriceStatsErr.
func (s *Store) PriceStats(_ context.Context, _ catalog.Category, _ string) (catalog.PriceStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PriceStatsCalls++
	return s.PriceStatsResult, s.PriceStatsErr
}

// Reset clears all call records.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NearestCalls = nil
	s.TextSearchCalls = nil
	s.TopByRegionCalls = nil
	s.PriceStatsCalls = 0
}

func head[T any](s []T, k int) []T {
	if k >= 0 && len(s) > k {
		return s[:k]
	}
	return s
}
