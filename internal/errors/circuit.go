package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is in the chain of every call rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit open")

// State is the position of a CircuitBreaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout passes.
	StateOpen
	// StateHalfOpen lets one trial call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitBreaker guards one upstream. After maxFailures consecutive
// failures it opens and rejects calls; once resetTimeout has passed a single
// trial call decides whether it closes again or stays open. Cancellation of
// the caller's context is not counted as an upstream failure.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the consecutive failures that open the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long the circuit stays open.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// WithLogger sets the logger that records state transitions.
func WithLogger(l *slog.Logger) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if l != nil {
			cb.logger = l
		}
	}
}

// NewCircuitBreaker creates a closed breaker for the upstream called name.
// Defaults: 5 failures, 30s reset timeout.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State returns the current state. An open circuit whose timeout has
// passed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current()
}

func (cb *CircuitBreaker) current() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Execute calls fn unless the circuit is open, in which case it returns an
// upstream error wrapping ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.current() {
	case StateOpen:
		return cb.rejection()
	case StateHalfOpen:
		if cb.trial {
			return cb.rejection()
		}
		if cb.state == StateOpen {
			cb.state = StateHalfOpen
			cb.logger.Info("circuit_half_open", slog.String("upstream", cb.name))
		}
		cb.trial = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	halfOpen := cb.state == StateHalfOpen
	cb.trial = false

	switch {
	case err == nil:
		if cb.state != StateClosed {
			cb.logger.Info("circuit_closed", slog.String("upstream", cb.name))
		}
		cb.state = StateClosed
		cb.failures = 0
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// says nothing about the upstream; a half-open circuit waits for the next trial
	default:
		cb.failures++
		if halfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = time.Now()
			cb.logger.Warn("circuit_opened",
				slog.String("upstream", cb.name),
				slog.Int("failures", cb.failures),
				slog.Duration("reset_after", cb.resetTimeout),
				LogAttr(err))
		}
	}
}

// rejection is the error returned while open. It is not retryable: the
// circuit will not close within a retry loop.
func (cb *CircuitBreaker) rejection() error {
	be := New(ErrCodeUpstreamUnavailable,
		fmt.Sprintf("upstream %s unavailable: circuit open after %d failures", cb.name, cb.failures),
		ErrCircuitOpen).
		WithDetail("upstream", cb.name).
		WithSuggestion("check the embedding provider, then run 'kbank reembed' once it is back")
	be.Retryable = false
	return be
}
