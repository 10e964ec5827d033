package quote

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/renoquote/pkg/catalog"
	"github.com/MrWong99/renoquote/pkg/types"
)

// ListOptions filters [Repository.List]. Zero fields match everything.
type ListOptions struct {
	UserType types.UserType
	Region   string

	// Limit caps the number of quotes returned; 0 means no cap.
	Limit int
}

// Repository persists issued quotes. Implementations must be safe for
// concurrent use and must never modify a saved quote.
type Repository interface {
	// Save stores q. It returns [ErrAlreadyExists] when q.ID is taken.
	Save(ctx context.Context, q Quote) error

	// Get returns the quote with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Quote, error)

	// Exists reports whether a quote with the given ID was saved.
	Exists(ctx context.Context, id string) (bool, error)

	// List returns saved quotes matching opts, newest first.
	List(ctx context.Context, opts ListOptions) ([]Quote, error)
}

// Matches reports whether q satisfies the filters of o.
func (o ListOptions) Matches(q Quote) bool {
	if o.UserType != "" && q.UserType != o.UserType {
		return false
	}
	if o.Region != "" && catalog.Key(q.Region) != catalog.Key(o.Region) {
		return false
	}
	return true
}

// MemRepository is an in-memory [Repository]. It stores deep copies so that
// callers cannot alter a saved quote through shared slices.
type MemRepository struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	order  []string
}

var _ Repository = (*MemRepository)(nil)

// NewMemRepository returns an empty repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{quotes: make(map[string]Quote)}
}

// Save implements [Repository].
func (r *MemRepository) Save(_ context.Context, q Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotes[q.ID]; ok {
		return fmt.Errorf("quote: save %q: %w", q.ID, ErrAlreadyExists)
	}
	r.quotes[q.ID] = q.Clone()
	r.order = append(r.order, q.ID)
	return nil
}

// Get implements [Repository].
func (r *MemRepository) Get(_ context.Context, id string) (Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[id]
	if !ok {
		return Quote{}, fmt.Errorf("quote: get %q: %w", id, ErrNotFound)
	}
	return q.Clone(), nil
}

// Exists implements [Repository].
func (r *MemRepository) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.quotes[id]
	return ok, nil
}

// List implements [Repository]. Quotes created at the same instant are
// returned in reverse insertion order.
func (r *MemRepository) List(_ context.Context, opts ListOptions) ([]Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Quote
	for _, id := range slices.Backward(r.order) {
		q := r.quotes[id]
		if opts.Matches(q) {
			out = append(out, q.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Quote) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
