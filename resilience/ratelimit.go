package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig configures the token bucket rate limiter.
type RateLimitConfig struct {
	// RequestsPerWindow is the bucket capacity: the number of calls
	// admitted per Window. Default: 60
	RequestsPerWindow int

	// Window is the refill window. The bucket refills continuously at
	// RequestsPerWindow/Window. Default: 1 minute
	Window time.Duration

	// QueueEnabled switches Acquire from immediate rejection to FIFO
	// waiting. Default: false
	QueueEnabled bool

	// MaxQueueSize caps the number of queued waiters. Zero means
	// unbounded. Only meaningful when QueueEnabled is true.
	MaxQueueSize int
}

// waiter is a queued caller waiting for a token. The drain loop closes
// ready when a token has been consumed on the waiter's behalf.
type waiter struct {
	ready chan struct{}
}

// RateLimiter is a token bucket admission gate for a single provider.
//
// In immediate mode Acquire rejects with *RateLimitError when no token is
// available. In queued mode callers join a FIFO queue released by a single
// drain loop, strictly in arrival order.
type RateLimiter struct {
	config RateLimitConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	queue      []*waiter
	draining   bool
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.RequestsPerWindow),
		lastRefill: time.Now(),
	}
}

// Acquire consumes one token, waiting in the FIFO queue when queued mode is
// enabled. It returns *RateLimitError (immediate mode, no token),
// *QueueFullError (queued mode, queue at capacity), or ctx.Err() when the
// caller gives up while queued.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rl.mu.Lock()
	rl.refillLocked()

	// Fast path: a token is free and nobody is queued ahead of us.
	if rl.tokens >= 1 && len(rl.queue) == 0 {
		rl.tokens--
		rl.mu.Unlock()
		return nil
	}

	if !rl.config.QueueEnabled {
		wait := rl.nextTokenWaitLocked()
		rl.mu.Unlock()
		return &RateLimitError{RetryAfter: wait}
	}

	if rl.config.MaxQueueSize > 0 && len(rl.queue) >= rl.config.MaxQueueSize {
		depth := len(rl.queue)
		rl.mu.Unlock()
		return &QueueFullError{Depth: depth, Limit: rl.config.MaxQueueSize}
	}

	w := &waiter{ready: make(chan struct{})}
	rl.queue = append(rl.queue, w)
	if !rl.draining {
		rl.draining = true
		go rl.drain()
	}
	rl.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		rl.abandon(w)
		return ctx.Err()
	}
}

// Execute acquires a token then runs the operation.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.Acquire(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// drain releases queued waiters in FIFO order. Exactly one drain loop runs
// at a time, guarded by the draining flag.
func (rl *RateLimiter) drain() {
	for {
		rl.mu.Lock()
		rl.refillLocked()

		if len(rl.queue) == 0 {
			rl.draining = false
			rl.mu.Unlock()
			return
		}

		if rl.tokens >= 1 {
			w := rl.queue[0]
			rl.queue = rl.queue[1:]
			rl.tokens--
			close(w.ready)
			rl.mu.Unlock()
			continue
		}

		wait := rl.nextTokenWaitLocked()
		rl.mu.Unlock()
		time.Sleep(wait)
	}
}

// abandon removes a cancelled waiter from the queue. If the drain loop
// already granted it a token, the token is returned to the bucket.
func (rl *RateLimiter) abandon(w *waiter) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for i, queued := range rl.queue {
		if queued == w {
			rl.queue = append(rl.queue[:i], rl.queue[i+1:]...)
			return
		}
	}

	// Not in the queue: the grant raced with cancellation.
	rl.tokens++
	if rl.tokens > float64(rl.config.RequestsPerWindow) {
		rl.tokens = float64(rl.config.RequestsPerWindow)
	}
}

// refillLocked adds tokens proportional to elapsed wall-clock time, capped
// at capacity.
func (rl *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	rl.lastRefill = now

	rl.tokens += elapsed.Seconds() * rl.ratePerSecond()
	if rl.tokens > float64(rl.config.RequestsPerWindow) {
		rl.tokens = float64(rl.config.RequestsPerWindow)
	}
}

func (rl *RateLimiter) ratePerSecond() float64 {
	return float64(rl.config.RequestsPerWindow) / rl.config.Window.Seconds()
}

// nextTokenWaitLocked estimates the wait until one full token is available.
func (rl *RateLimiter) nextTokenWaitLocked() time.Duration {
	if rl.tokens >= 1 {
		return 0
	}
	need := 1 - rl.tokens
	wait := time.Duration(need / rl.ratePerSecond() * float64(time.Second))
	if wait < 0 {
		return 0
	}
	return wait
}

// RateLimitStats contains rate limiter observability data.
type RateLimitStats struct {
	Tokens     float64
	Capacity   int
	QueueDepth int
}

// Stats returns current token availability and queue depth.
func (rl *RateLimiter) Stats() RateLimitStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()

	return RateLimitStats{
		Tokens:     rl.tokens,
		Capacity:   rl.config.RequestsPerWindow,
		QueueDepth: len(rl.queue),
	}
}

// Reset refills the bucket to capacity and drops no waiters.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = float64(rl.config.RequestsPerWindow)
	rl.lastRefill = time.Now()
}
