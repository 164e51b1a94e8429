package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/liftplane/liftplane/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
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

// ErrorClassifier determines which errors count toward the failure threshold
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts only infrastructure errors, not user errors
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	// Validation failures are the caller's fault, not the backend's
	if core.IsValidation(err) {
		return false
	}
	// Context cancellation means the client gave up
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs
	Name string

	// FailureThreshold is the number of consecutive counted failures
	// before the circuit opens
	FailureThreshold int

	// RecoveryTimeout is how long to wait before probing recovery
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is how many probe calls the half-open state admits
	HalfOpenMaxCalls int

	// ShouldCount classifies errors; DefaultErrorClassifier when nil
	ShouldCount ErrorClassifier

	// Logger is optional
	Logger core.Logger
}

// CircuitBreaker protects a downstream dependency by failing fast once it
// has seen enough consecutive failures. State transitions:
// closed -> open on threshold, open -> half-open after the recovery
// timeout, half-open -> closed on a successful probe (or back to open).
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failures      int
	halfOpenCalls int
	openedAt      time.Time
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.ShouldCount == nil {
		cfg.ShouldCount = DefaultErrorClassifier
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

func (cb *CircuitBreaker) currentStateLocked() CircuitState {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.RecoveryTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.logTransition(StateOpen, StateHalfOpen)
	}
	return cb.state
}

// Execute runs fn if the circuit admits the call, recording the outcome.
// When the circuit is open it returns core.ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return core.ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.cfg.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) record(err error) {
	counted := cb.cfg.ShouldCount(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.logTransition(StateHalfOpen, StateClosed)
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	if !counted {
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		if cb.state != StateOpen {
			cb.logTransition(cb.state, StateOpen)
		}
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) logTransition(from, to CircuitState) {
	if cb.cfg.Logger == nil {
		return
	}
	cb.cfg.Logger.Warn("Circuit breaker state change", map[string]interface{}{
		"name": cb.cfg.Name,
		"from": from.String(),
		"to":   to.String(),
	})
}
