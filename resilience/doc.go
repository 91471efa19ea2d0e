// Package resilience provides the failure-handling primitives for guarded
// speech-to-text provider calls.
//
// Each primitive wraps an operation — an asynchronous function performing
// the actual network call — and can be used on its own or composed by the
// guard package into a single protected call.
//
// # Primitives
//
//   - Circuit Breaker: stops calling a failing provider after a run of
//     consecutive failures, admitting probe calls once a recovery timeout
//     has passed.
//
//   - Rate Limiter: token-bucket admission control with an optional FIFO
//     wait queue released strictly in arrival order.
//
//   - Retry: re-invokes a failed operation with exponential, linear, or
//     fixed backoff plus optional jitter, governed by a retry predicate.
//
//   - Bulkhead: caps concurrent in-flight operations per provider.
//
//   - Timeout: bounds a single operation's duration.
//
// # Errors
//
// Rejections surface as typed errors (CircuitOpenError, RateLimitError,
// QueueFullError, RetriesExhaustedError) that unwrap to package sentinels,
// so callers can branch with errors.Is or read fields with errors.As.
//
// # Concurrency
//
// All primitives are safe for concurrent use. State transitions are
// serialized behind a per-primitive mutex, so failure and success counters
// are exact even under concurrent in-flight calls.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
//	    FailureThreshold: 5,
//	    OpenTimeout:      time.Minute,
//	})
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    BaseDelay:   time.Second,
//	    Jitter:      true,
//	})
//
//	limiter := resilience.NewRateLimiter(resilience.RateLimitConfig{
//	    RequestsPerWindow: 60,
//	    Window:            time.Minute,
//	})
//
//	err := limiter.Execute(ctx, func(ctx context.Context) error {
//	    return cb.Execute(ctx, func(ctx context.Context) error {
//	        return retry.Execute(ctx, transcribe)
//	    })
//	})
package resilience
