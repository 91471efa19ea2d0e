package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls flow through normally.
	StateClosed State = iota
	// StateOpen means calls are rejected without reaching the provider.
	StateOpen
	// StateHalfOpen means probe calls are admitted to test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes in half-open
	// state that closes the circuit. Default: 2
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before admitting a
	// probe call. Default: 60 seconds
	OpenTimeout time.Duration

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

// CircuitBreaker gates calls to a single provider. After FailureThreshold
// consecutive failures it rejects calls outright until OpenTimeout has
// passed, then admits probes until SuccessThreshold consecutive successes
// close it again.
type CircuitBreaker struct {
	config BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	reopenAt  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 60 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Execute runs the operation through the circuit breaker. When the circuit
// is open it returns *CircuitOpenError without invoking the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// State returns the current circuit state. The open-to-half-open transition
// is evaluated lazily here, so reading the state can itself transition it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset forces the circuit closed with all counters zeroed. Operator
// override: use when a provider is known to have recovered.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.reopenAt = time.Time{}

	if oldState != StateClosed && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, StateClosed)
	}
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.currentStateLocked() == StateOpen {
		return &CircuitOpenError{RetryAfter: time.Until(cb.reopenAt)}
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isFailure := cb.config.IsFailure(err)
	oldState := cb.state

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			if cb.failures >= cb.config.FailureThreshold {
				cb.tripLocked()
			}
		} else {
			cb.failures = 0
		}

	case StateHalfOpen:
		if isFailure {
			// A single failed probe reopens the circuit.
			cb.successes = 0
			cb.tripLocked()
		} else {
			cb.failures = 0
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.successes = 0
			}
		}
	}

	if oldState != cb.state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, cb.state)
	}
}

// tripLocked moves the circuit to open and schedules the recovery probe.
func (cb *CircuitBreaker) tripLocked() {
	cb.state = StateOpen
	cb.reopenAt = time.Now().Add(cb.config.OpenTimeout)
}

// currentStateLocked applies the lazy open-to-half-open transition: the
// instant a call arrives at or after reopenAt the circuit admits probes.
func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && !time.Now().Before(cb.reopenAt) {
		cb.state = StateHalfOpen
		cb.successes = 0
		if cb.config.OnStateChange != nil {
			cb.config.OnStateChange(StateOpen, StateHalfOpen)
		}
	}
	return cb.state
}

// BreakerSnapshot contains circuit breaker observability data.
type BreakerSnapshot struct {
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	ReopenAt             time.Time
}

// Snapshot returns the current breaker state and counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerSnapshot{
		State:                cb.currentStateLocked(),
		ConsecutiveFailures:  cb.failures,
		ConsecutiveSuccesses: cb.successes,
		ReopenAt:             cb.reopenAt,
	}
}
