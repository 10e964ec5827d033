package resilience

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errEmbedDown = errors.New("embedding server unreachable")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBreaker(clk *fakeClock, mutate func(*CircuitBreakerConfig)) *CircuitBreaker {
	cfg := CircuitBreakerConfig{
		Name:         "embeddings",
		MaxFailures:  3,
		ResetTimeout: 10 * time.Second,
		HalfOpenMax:  2,
		Now:          clk.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewCircuitBreaker(cfg)
}

func fail() error { return errEmbedDown }
func succeed() error { return nil }

// drive runs calls in order and returns the resulting error of each.
func drive(cb *CircuitBreaker, calls ...func() error) []error {
	errs := make([]error, len(calls))
	for i, fn := range calls {
		errs[i] = cb.Execute(fn)
	}
	return errs
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("defaults = %d/%v/%d, want 5/30s/3", cb.cfg.MaxFailures, cb.cfg.ResetTimeout, cb.cfg.HalfOpenMax)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v", got, StateClosed)
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		calls   []func() error
		advance time.Duration // applied before the probe calls
		probes  []func() error
		want    State
	}{
		{
			name:  "failures below threshold stay closed",
			calls: []func() error{fail, fail},
			want:  StateClosed,
		},
		{
			name:  "success breaks the failure streak",
			calls: []func() error{fail, fail, succeed, fail, fail},
			want:  StateClosed,
		},
		{
			name:  "threshold opens",
			calls: []func() error{fail, fail, fail},
			want:  StateOpen,
		},
		{
			name:    "cool-down elapsed reports half-open",
			calls:   []func() error{fail, fail, fail},
			advance: 10 * time.Second,
			want:    StateHalfOpen,
		},
		{
			name:    "enough probe successes close",
			calls:   []func() error{fail, fail, fail},
			advance: 11 * time.Second,
			probes:  []func() error{succeed, succeed},
			want:    StateClosed,
		},
		{
			name:    "single probe success stays half-open",
			calls:   []func() error{fail, fail, fail},
			advance: 11 * time.Second,
			probes:  []func() error{succeed},
			want:    StateHalfOpen,
		},
		{
			name:    "probe failure re-opens",
			calls:   []func() error{fail, fail, fail},
			advance: 11 * time.Second,
			probes:  []func() error{succeed, fail},
			want:    StateOpen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			cb := newBreaker(clk, nil)
			drive(cb, tt.calls...)
			clk.Advance(tt.advance)
			drive(cb, tt.probes...)
			if got := cb.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpenRefusesWithoutCalling(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := newBreaker(clk, nil)
	drive(cb, fail, fail, fail)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while the breaker was open")
	}

	// Re-opening after a failed probe starts a fresh cool-down.
	clk.Advance(10 * time.Second)
	drive(cb, fail)
	clk.Advance(9 * time.Second)
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err during second cool-down = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenAdmitsLimitedProbes(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := newBreaker(clk, nil)
	drive(cb, fail, fail, fail)
	clk.Advance(time.Minute)

	// Two probes are admitted while their outcome is pending; a third is not.
	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("third probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v", got, StateClosed)
	}
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	t.Parallel()

	errNoMatch := errors.New("no match above floor")
	cb := newBreaker(newFakeClock(), func(c *CircuitBreakerConfig) {
		c.IsFailure = func(err error) bool { return !errors.Is(err, errNoMatch) }
	})

	for i := range 10 {
		err := cb.Execute(func() error { return fmt.Errorf("query %d: %w", i, errNoMatch) })
		if !errors.Is(err, errNoMatch) {
			t.Fatalf("err = %v, want the call's own error", err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v after declined calls, want %v", got, StateClosed)
	}

	drive(cb, fail, fail, fail)
	if got := cb.State(); got != StateOpen {
		t.Errorf("State() = %v after real failures, want %v", got, StateOpen)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	var seen []string
	clk := newFakeClock()
	cb := newBreaker(clk, func(c *CircuitBreakerConfig) {
		c.HalfOpenMax = 1
		c.OnStateChange = func(name string, from, to State) {
			seen = append(seen, fmt.Sprintf("%s:%v->%v", name, from, to))
		}
	})

	drive(cb, fail, fail, fail)
	clk.Advance(time.Minute)
	drive(cb, succeed)

	want := []string{
		"embeddings:closed->open",
		"embeddings:open->half-open",
		"embeddings:half-open->closed",
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := newBreaker(newFakeClock(), nil)
	drive(cb, fail, fail, fail)
	cb.Reset()

	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want %v", got, StateClosed)
	}
	// The failure streak starts over.
	drive(cb, fail, fail)
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v after two failures, want %v", got, StateClosed)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
