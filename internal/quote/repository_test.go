package quote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/pkg/types"
)

func TestMemRepository_SaveIsImmutable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := quote.NewMemRepository()
	q := quote.Quote{
		ID:    "q1",
		Tasks: []quote.Task{{Label: "Painting", Lines: []quote.Line{{MaterialID: "paint"}}}},
	}
	if err := repo.Save(ctx, q); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, q); !errors.Is(err, quote.ErrAlreadyExists) {
		t.Errorf("second Save err = %v, want ErrAlreadyExists", err)
	}

	// Mutating the caller's copy or a returned copy must not leak in.
	q.Tasks[0].Label = "changed"
	got, err := repo.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Tasks[0].Lines[0].MaterialID = "changed"

	again, err := repo.Get(ctx, "q1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Tasks[0].Label != "Painting" || again.Tasks[0].Lines[0].MaterialID != "paint" {
		t.Errorf("stored quote changed: %+v", again.Tasks)
	}
}

func TestMemRepository_GetMissing(t *testing.T) {
	t.Parallel()

	repo := quote.NewMemRepository()
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, quote.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	ok, err := repo.Exists(context.Background(), "nope")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v, want false, nil", ok, err)
	}
}

func TestMemRepository_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := quote.NewMemRepository()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, q := range []quote.Quote{
		{ID: "a", UserType: types.UserContractor, Region: "Paris", CreatedAt: base},
		{ID: "b", UserType: types.UserClient, Region: "Lyon", CreatedAt: base.Add(time.Hour)},
		{ID: "c", UserType: types.UserContractor, Region: "paris", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "d", UserType: types.UserContractor, Region: "Lyon", CreatedAt: base.Add(-time.Hour)},
	} {
		if err := repo.Save(ctx, q); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	tests := []struct {
		name string
		opts quote.ListOptions
		want []string
	}{
		{"all newest first", quote.ListOptions{}, []string{"c", "b", "a", "d"}},
		{"by user type", quote.ListOptions{UserType: types.UserContractor}, []string{"c", "a", "d"}},
		{"by region folds case", quote.ListOptions{Region: "PARIS"}, []string{"c", "a"}},
		{"limit", quote.ListOptions{Limit: 2}, []string{"c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := repo.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d quotes, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}
