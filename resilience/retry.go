package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays grow between retry attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by BackoffBase each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay by BaseDelay each attempt.
	BackoffLinear
	// BackoffFixed uses BaseDelay for every attempt.
	BackoffFixed
)

// String returns the string representation of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffExponential:
		return "exponential"
	case BackoffLinear:
		return "linear"
	case BackoffFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of invocations, including the
	// first. Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Default: 1 second
	BaseDelay time.Duration

	// MaxDelay caps the computed delay before jitter. Default: 30 seconds
	MaxDelay time.Duration

	// BackoffBase is the exponential growth factor. Default: 2.0
	BackoffBase float64

	// Strategy is the backoff strategy. Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter adds up to 20% random delay on top of the computed backoff
	// to desynchronize concurrent retrying callers.
	Jitter bool

	// RetryIf determines whether an error should trigger a retry.
	// Default: IsRetryable
	RetryIf func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry invokes an operation until it succeeds, the predicate rejects the
// error, or the attempt budget is spent.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = IsRetryable
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	return r.ExecuteNamed(ctx, "", op)
}

// ExecuteNamed runs the operation with retry logic, labeling any
// *RetriesExhaustedError with name.
//
// Errors the predicate rejects propagate unchanged on first occurrence.
// When the budget is spent the last error is wrapped in
// *RetriesExhaustedError. Cancellation during a backoff sleep stops the
// loop promptly without further attempts.
func (r *Retry) ExecuteNamed(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return err
		}

		if attempt == r.config.MaxAttempts-1 {
			break
		}

		delay := r.delay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RetriesExhaustedError{
		Attempts: r.config.MaxAttempts,
		Op:       name,
		Err:      lastErr,
	}
}

// delay computes the backoff for a zero-indexed attempt.
func (r *Retry) delay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case BackoffFixed:
		delay = r.config.BaseDelay

	case BackoffLinear:
		delay = r.config.BaseDelay * time.Duration(attempt+1)

	case BackoffExponential:
		factor := math.Pow(r.config.BackoffBase, float64(attempt))
		delay = time.Duration(float64(r.config.BaseDelay) * factor)
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter {
		if bound := int64(delay / 5); bound > 0 {
			// #nosec G404 -- jitter is non-cryptographic timing variance.
			delay += time.Duration(rand.Int64N(bound))
		}
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
