package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Sentinel errors for matching with errors.Is. The typed error structs below
// unwrap to these, so callers can match on the category without caring about
// the carried fields.
var (
	// ErrCircuitOpen is returned when the circuit breaker refuses a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimited is returned when the token bucket has no token available.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrQueueFull is returned when the rate limiter wait queue is at capacity.
	ErrQueueFull = errors.New("resilience: rate limiter queue is full")

	// ErrRetriesExhausted is returned when the retry budget is spent.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")

	// ErrBulkheadFull is returned when the concurrency limit is reached.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// CircuitOpenError reports a call rejected by an open circuit breaker.
// The wrapped operation was never invoked.
type CircuitOpenError struct {
	// RetryAfter is how long until the breaker will admit a probe call.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit breaker is open (retry after %s)", e.RetryAfter.Round(time.Millisecond))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// RateLimitError reports a call rejected in immediate mode because no token
// was available.
type RateLimitError struct {
	// RetryAfter is the estimated wait until the next token.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded (retry after %s)", e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// QueueFullError reports a call rejected at enqueue time because the rate
// limiter wait queue was at its configured capacity.
type QueueFullError struct {
	Depth int // waiters already queued
	Limit int // configured maximum
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("resilience: rate limiter queue is full (%d/%d waiters)", e.Depth, e.Limit)
}

func (e *QueueFullError) Unwrap() error { return ErrQueueFull }

// RetriesExhaustedError reports that an operation kept failing with retryable
// errors until the attempt budget was spent. It wraps the final attempt's
// error, so errors.Is and errors.As see through it.
type RetriesExhaustedError struct {
	Attempts int    // how many times the operation was invoked
	Op       string // optional label for the operation, may be empty
	Err      error  // the last underlying error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("resilience: %s: retries exhausted after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("resilience: retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Err} }

// Retryable is implemented by errors that declare their own retryability.
// It takes precedence over every other signal in IsRetryable.
type Retryable interface {
	Retryable() bool
}

// StatusCoder is implemented by errors that carry an HTTP-like status code,
// typically wrapped around a provider response.
type StatusCoder interface {
	StatusCode() int
}

// StatusError wraps a provider failure with its HTTP status code. Callers of
// the engine construct these so the default retry predicate can classify
// provider responses without probing response payloads.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("status %d", e.Status)
}

func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Status }

// retryableStatus is the set of HTTP status codes worth retrying.
var retryableStatus = map[int]bool{
	408: true, // request timeout
	429: true, // too many requests
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable is the default retry predicate. An error is retryable when it
// says so itself, when it carries a retryable HTTP status code, or when it
// looks like a transient network or timeout condition. Errors that declare
// themselves non-retryable are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return retryableStatus[sc.StatusCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "timed out", "connection refused", "connection reset", "network", "temporarily unavailable", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
