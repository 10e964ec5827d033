package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Compile-time interface assertions.
var (
	_ Store        = (*MemStore)(nil)
	_ Writer       = (*MemStore)(nil)
	_ PriceStatter = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory [Store]. Nearest is an exact flat
// scan, which is fine for seed catalogs of a few thousand records and for
// tests.
type MemStore struct {
	dims int

	mu      sync.RWMutex
	records map[string]MaterialRecord
}

// NewMemStore returns an empty [MemStore] that accepts embeddings of dims
// dimensions (0 accepts any length).
func NewMemStore(dims int) *MemStore {
	return &MemStore{
		dims:    dims,
		records: make(map[string]MaterialRecord),
	}
}

// Upsert implements [Writer]. Every record is validated before any is
// stored; one invalid record rejects the whole batch.
func (s *MemStore) Upsert(_ context.Context, records ...MaterialRecord) error {
	for _, r := range records {
		if err := Validate(r, s.dims); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Embedding = slices.Clone(r.Embedding)
		s.records[r.ID] = r
	}
	return nil
}

// Get returns the record with the given ID.
func (s *MemStore) Get(_ context.Context, id string) (MaterialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return MaterialRecord{}, fmt.Errorf("catalog: get %q: %w", id, ErrNotFound)
	}
	return r, nil
}

// Len returns the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Nearest implements [Store.Nearest]. Records without an embedding are
// skipped.
func (s *MemStore) Nearest(_ context.Context, vec []float32, k int, f Filters) ([]Neighbor, error) {
	if s.dims > 0 && len(vec) != s.dims {
		return nil, fmt.Errorf("catalog: nearest: %w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dims)
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	out := make([]Neighbor, 0, len(s.records))
	for _, r := range s.records {
		if len(r.Embedding) == 0 || !f.Match(r) {
			continue
		}
		out = append(out, Neighbor{Record: r, Similarity: ClampUnit(Cosine(vec, r.Embedding))})
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Neighbor) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return compareRecords(a.Record, b.Record)
	})
	return truncate(out, k), nil
}

// TextSearch implements [Store.TextSearch] using [RankByText].
func (s *MemStore) TextSearch(_ context.Context, query string, f Filters, k int) ([]MaterialRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	candidates := make([]MaterialRecord, 0, len(s.records))
	for _, r := range s.records {
		if f.Match(r) {
			candidates = append(candidates, r)
		}
	}
	s.mu.RUnlock()
	return RankByText(query, candidates, k), nil
}

// TopByRegion implements [Store.TopByRegion].
func (s *MemStore) TopByRegion(_ context.Context, region string, k int) ([]MaterialRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	f := Filters{Region: region}

	s.mu.RLock()
	out := make([]MaterialRecord, 0, len(s.records))
	for _, r := range s.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, compareRecords)
	return truncate(out, k), nil
}

// PriceStats implements [PriceStatter].
func (s *MemStore) PriceStats(_ context.Context, category Category, region string) (PriceStats, error) {
	s.mu.RLock()
	var inCategory []MaterialRecord
	for _, r := range s.records {
		if r.Category == category {
			inCategory = append(inCategory, r)
		}
	}
	s.mu.RUnlock()
	return CategoryStats(inCategory, region), nil
}

func compareRecords(a, b MaterialRecord) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	}
	return 0
}

func truncate[T any](s []T, k int) []T {
	if len(s) > k {
		return s[:k]
	}
	return s
}
