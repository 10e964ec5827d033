package resilience

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
)

func newTierGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("semantic", "semantic", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("fuzzy", "fuzzy")
	fg.AddFallback("emergency", "emergency")
	return fg
}

func TestFallbackGroup_FirstEntryWins(t *testing.T) {
	fg := newTierGroup()

	var tried []string
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		return "from-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-semantic" {
		t.Fatalf("result = %q, want from-semantic", got)
	}
	if !slices.Equal(tried, []string{"semantic"}) {
		t.Fatalf("tried = %v, want only semantic", tried)
	}
}

func TestFallbackGroup_OrderIsPreserved(t *testing.T) {
	fg := newTierGroup()

	if got := fg.Names(); !slices.Equal(got, []string{"semantic", "fuzzy", "emergency"}) {
		t.Fatalf("Names() = %v", got)
	}

	var tried []string
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		if v != "emergency" {
			return "", fmt.Errorf("%s: %w", v, ErrDeclined)
		}
		return "degraded", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "degraded" {
		t.Fatalf("result = %q, want degraded", got)
	}
	if !slices.Equal(tried, []string{"semantic", "fuzzy", "emergency"}) {
		t.Fatalf("tried = %v, want all three in order", tried)
	}
}

func TestFallbackGroup_DeclineDoesNotTripBreaker(t *testing.T) {
	fg := newTierGroup()

	for i := 0; i < 5; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "semantic" {
				return ErrDeclined
			}
			return nil
		})
	}
	if s := fg.Breaker("semantic").State(); s != StateClosed {
		t.Fatalf("semantic breaker = %v, want closed", s)
	}
}

func TestFallbackGroup_FailureOpensBreakerAndSkips(t *testing.T) {
	fg := newTierGroup()

	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "semantic" {
				return errEmbedDown
			}
			return nil
		})
	}
	if s := fg.Breaker("semantic").State(); s != StateOpen {
		t.Fatalf("semantic breaker = %v, want open", s)
	}

	var tried []string
	err := fg.Execute(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(tried, []string{"fuzzy"}) {
		t.Fatalf("tried = %v, want fuzzy only (semantic circuit open)", tried)
	}
}

func TestFallbackGroup_AllFailWrapsLastError(t *testing.T) {
	fg := newTierGroup()
	errStore := errors.New("store unreachable")

	_, err := ExecuteWithResult(fg, func(v string) (int, error) {
		if v == "emergency" {
			return 0, errStore
		}
		return 0, ErrDeclined
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errStore) {
		t.Fatalf("err = %v, want wrapped errStore", err)
	}
}

func TestFallbackGroup_BreakerUnknownName(t *testing.T) {
	if b := newTierGroup().Breaker("nope"); b != nil {
		t.Fatalf("Breaker(nope) = %v, want nil", b)
	}
}
