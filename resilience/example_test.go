package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxguard/voxguard/resilience"
)

func ExampleNewCircuitBreaker() {
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	ctx := context.Background()
	err := cb.Execute(ctx, func(ctx context.Context) error {
		// Simulated successful transcription call
		return nil
	})

	if err == nil {
		fmt.Println("call succeeded")
	}
	// Output:
	// call succeeded
}

func ExampleCircuitBreaker_Execute_open() {
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
	})

	ctx := context.Background()
	_ = cb.Execute(ctx, func(ctx context.Context) error {
		return errors.New("provider unreachable")
	})

	err := cb.Execute(ctx, func(ctx context.Context) error {
		fmt.Println("this never runs")
		return nil
	})

	fmt.Println("gated:", errors.Is(err, resilience.ErrCircuitOpen))
	// Output:
	// gated: true
}

func ExampleNewRetry() {
	r := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return &resilience.StatusError{Status: 503}
		}
		return nil
	})

	fmt.Println("err:", err)
	fmt.Println("attempts:", attempts)
	// Output:
	// err: <nil>
	// attempts: 2
}

func ExampleNewRateLimiter() {
	rl := resilience.NewRateLimiter(resilience.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Hour,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := rl.Acquire(ctx)
		fmt.Println("admitted:", err == nil)
	}
	// Output:
	// admitted: true
	// admitted: true
	// admitted: false
}

func ExampleIsRetryable() {
	fmt.Println(resilience.IsRetryable(&resilience.StatusError{Status: 429}))
	fmt.Println(resilience.IsRetryable(&resilience.StatusError{Status: 401}))
	fmt.Println(resilience.IsRetryable(errors.New("dial tcp: connection refused")))
	// Output:
	// true
	// false
	// true
}
