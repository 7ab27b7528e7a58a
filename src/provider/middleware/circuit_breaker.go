package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/perplext/redteam-core/src/provider/core"
)

// CircuitBreakerState is one of closed/open/half-open.
type CircuitBreakerState int

const (
	CircuitBreakerStateClosed CircuitBreakerState = iota
	CircuitBreakerStateOpen
	CircuitBreakerStateHalfOpen
)

// CircuitBreakerConfig tunes the failure/recovery thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold         int
	ResetTimeout             time.Duration
	HalfOpenSuccessThreshold int
}

// CircuitBreakerMiddleware trips open after consecutive provider failures and
// sheds load until ResetTimeout elapses, then probes in half-open state.
type CircuitBreakerMiddleware struct {
	mutex                sync.RWMutex
	config               CircuitBreakerConfig
	state                CircuitBreakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastStateChange      time.Time
}

// NewCircuitBreakerMiddleware creates a circuit breaker; non-positive config
// fields fall back to conservative defaults.
func NewCircuitBreakerMiddleware(config CircuitBreakerConfig) *CircuitBreakerMiddleware {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenSuccessThreshold <= 0 {
		config.HalfOpenSuccessThreshold = 2
	}

	return &CircuitBreakerMiddleware{
		config:          config,
		state:           CircuitBreakerStateClosed,
		lastStateChange: time.Now(),
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Execute runs fn if the circuit allows it, and records the outcome.
func (cb *CircuitBreakerMiddleware) Execute(ctx context.Context, fn func(ctx context.Context) (core.Envelope, error)) (core.Envelope, error) {
	if !cb.allowRequest() {
		return core.Envelope{}, ErrCircuitOpen
	}

	result, err := fn(ctx)
	cb.updateState(err == nil)
	return result, err
}

func (cb *CircuitBreakerMiddleware) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case CircuitBreakerStateClosed:
		return true
	case CircuitBreakerStateOpen:
		if time.Since(cb.lastStateChange) > cb.config.ResetTimeout {
			cb.state = CircuitBreakerStateHalfOpen
			cb.lastStateChange = time.Now()
			cb.consecutiveSuccesses = 0
			return true
		}
		return false
	case CircuitBreakerStateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreakerMiddleware) updateState(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if success {
		cb.consecutiveFailures = 0
		if cb.state == CircuitBreakerStateHalfOpen {
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.config.HalfOpenSuccessThreshold {
				cb.state = CircuitBreakerStateClosed
				cb.lastStateChange = time.Now()
			}
		}
		return
	}

	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	if (cb.state == CircuitBreakerStateClosed && cb.consecutiveFailures >= cb.config.FailureThreshold) ||
		cb.state == CircuitBreakerStateHalfOpen {
		cb.state = CircuitBreakerStateOpen
		cb.lastStateChange = time.Now()
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreakerMiddleware) GetState() CircuitBreakerState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreakerMiddleware) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.state = CircuitBreakerStateClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.lastStateChange = time.Now()
}
