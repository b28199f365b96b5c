package retry

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int32

const (
	// CircuitClosed means calls go through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means calls fail fast until ResetTimeout has passed.
	CircuitOpen
	// CircuitHalfOpen lets trial calls through after an open period.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// MaxErrors is the number of consecutive failures that opens the circuit.
	MaxErrors int

	// ResetTimeout is how long the circuit stays open before a trial call.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of trial successes that close the circuit.
	SuccessThreshold int

	// Trips decides whether an error counts as a backend failure.
	// If nil, every non-permanent error counts.
	Trips func(error) bool

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to CircuitState)
}

// DefaultBreakerConfig returns the breaker used for remote backends.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxErrors:        5,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker stops calling a backend that keeps failing, so that a
// studio whose storage is down reports the failure at once instead of after
// a full retry cycle.
type CircuitBreaker struct {
	config *BreakerConfig

	state        atomic.Int32
	errorCount   atomic.Int32
	successCount atomic.Int32
	lastError    atomic.Int64 // Unix nanoseconds

	mu sync.Mutex
}

// NewCircuitBreaker creates a breaker. A nil config uses DefaultBreakerConfig.
func NewCircuitBreaker(config *BreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	cb := &CircuitBreaker{config: config}
	cb.state.Store(int32(CircuitClosed))
	return cb
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// Allow returns ErrCircuitOpen while the circuit is open.
func (cb *CircuitBreaker) Allow() error {
	if cb.State() != CircuitOpen {
		return nil
	}
	lastErr := time.Unix(0, cb.lastError.Load())
	if time.Since(lastErr) > cb.config.ResetTimeout {
		cb.setState(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case CircuitHalfOpen:
		if int(cb.successCount.Add(1)) >= cb.config.SuccessThreshold {
			cb.setState(CircuitClosed)
			cb.successCount.Store(0)
			cb.errorCount.Store(0)
		}
	default:
		cb.errorCount.Store(0)
	}
}

// RecordError records a failed call.
func (cb *CircuitBreaker) RecordError() {
	cb.lastError.Store(time.Now().UnixNano())

	switch cb.State() {
	case CircuitClosed:
		if int(cb.errorCount.Add(1)) >= cb.config.MaxErrors {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
		cb.successCount.Store(0)
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(CircuitClosed)
	cb.errorCount.Store(0)
	cb.successCount.Store(0)
}

func (cb *CircuitBreaker) setState(newState CircuitState) {
	oldState := CircuitState(cb.state.Swap(int32(newState)))
	if cb.config.OnStateChange != nil && oldState != newState {
		cb.config.OnStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) trips(err error) bool {
	if cb.config.Trips != nil {
		return cb.config.Trips(err)
	}
	return !IsPermanent(err)
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// ExecuteWithResult is Execute for functions returning a value. Errors the
// config does not count as failures leave the breaker state unchanged.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if cb == nil {
		return fn()
	}
	if err := cb.Allow(); err != nil {
		return zero, err
	}

	result, err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case cb.trips(err):
		cb.RecordError()
	}
	return result, err
}
