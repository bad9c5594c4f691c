package ai

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is refusing oracle calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var circuitStateNames = map[CircuitState]string{
	CircuitClosed:   "CLOSED",
	CircuitOpen:     "OPEN",
	CircuitHalfOpen: "HALF_OPEN",
}

func (s CircuitState) String() string {
	if name, ok := circuitStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// CircuitBreaker stops every worker from hammering the model API once it is
// failing. Oracles behind an open breaker fail closed, so cases keep flowing
// through their conservative branches until the API recovers.
type CircuitBreaker struct {
	mu sync.Mutex

	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// NewCircuitBreaker opens after failureThreshold consecutive failures, lets
// trial calls through after openTimeout, and closes after successThreshold trial successes.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if time.Since(cb.openedAt) > cb.openTimeout {
		cb.setState(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

// RecordSuccess notes a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

// RecordFailure notes a transient failure. A failed trial call reopens at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	case CircuitOpen:
		cb.openedAt = time.Now()
	}
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns the state with the running failure and trial counts.
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.successes
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.successes = 0
	switch next {
	case CircuitOpen:
		cb.openedAt = time.Now()
		slog.Warn("ai: circuit breaker opened", "from", prev, "failures", cb.failures, "reopen_in", cb.openTimeout)
	case CircuitClosed:
		cb.failures = 0
		slog.Info("ai: circuit breaker closed", "from", prev)
	default:
		slog.Info("ai: circuit breaker half-open", "from", prev)
	}
}
