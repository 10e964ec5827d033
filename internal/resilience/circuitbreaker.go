// Package resilience provides circuit breaker and ordered-fallback primitives.
//
// [CircuitBreaker] stops calling a dependency that keeps failing, such as an
// embedding server, and probes it again after a cool-down. [FallbackGroup]
// runs an ordered list of strategies, each behind its own breaker, and
// returns the first acceptable result. The similarity search uses it to walk
// its semantic, fuzzy, and emergency tiers.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	StateClosed   State = iota // every call goes through
	StateOpen                  // calls are refused until the cool-down ends
	StateHalfOpen              // a few probe calls decide between closed and open
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is the cool-down before probing. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close the breaker again. It is also the
	// number of probes admitted per cool-down. Default: 3.
	HalfOpenMax int

	// IsFailure decides which errors count against the dependency. An error
	// it rejects is passed through without touching the breaker, so a
	// healthy tier can say "nothing good enough" without tripping it. When
	// nil, every non-nil error counts.
	IsFailure func(error) bool

	// OnStateChange runs after each transition, under the breaker lock. It
	// must not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now.
	Now func() time.Time
}

// CircuitBreaker is a closed/open/half-open circuit breaker.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	failures  int       // consecutive, while closed
	openUntil time.Time // end of the current cool-down
	probes    int       // admitted in the current half-open window
	passed    int       // successful probes in the current window
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker refuses, in which case it returns
// [ErrCircuitOpen]. fn's own error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if callErr != nil && cb.cfg.IsFailure(callErr) {
		cb.onFailure(probe)
	} else {
		cb.onSuccess(probe)
	}
	return callErr
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Before(cb.openUntil) {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) onFailure(probe bool) {
	if probe && cb.state != StateHalfOpen {
		// Another probe already decided this window.
		return
	}
	if !probe {
		cb.failures++
		if cb.state != StateClosed || cb.failures < cb.cfg.MaxFailures {
			return
		}
	}
	cb.openUntil = cb.cfg.Now().Add(cb.cfg.ResetTimeout)
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) onSuccess(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	if cb.state != StateHalfOpen {
		return
	}
	cb.passed++
	if cb.passed >= cb.cfg.HalfOpenMax {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probes, cb.passed = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}

	if to == StateOpen {
		slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "cool_down", cb.cfg.ResetTimeout)
	} else {
		slog.Info("circuit breaker state change", "name", cb.cfg.Name, "from", from, "to", to)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State reports the current state. An open breaker whose cool-down is over
// reports [StateHalfOpen] even though the switch happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && !cb.cfg.Now().Before(cb.openUntil) {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.setState(StateClosed)
}
