// Package guard composes provider selection with per-provider protection
// into a single call surface.
//
// A Guard owns one protection triple per configured provider: a token
// bucket rate limiter, a circuit breaker, and a retry executor, plus an
// optional bulkhead and per-attempt timeout. Calls nest through the
// layers outermost to innermost:
//
//	rate limiter -> bulkhead -> circuit breaker -> retry -> timeout -> operation
//
// so a call rejected by an outer layer never consumes an attempt from an
// inner one, and the breaker judges each guarded call by the retry loop's
// final outcome rather than per attempt. A call the breaker gates never
// reaches the operation; the rejection is still recorded to metrics.
//
// # Usage
//
//	g, err := guard.New(guard.Config{
//	    Providers: configs,
//	    Selection: selector.Request{
//	        Strategy:        selector.StrategyCost,
//	        FallbackEnabled: true,
//	    },
//	}, guard.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	id, res, err := g.Call(ctx, func(ctx context.Context) (guard.Result, error) {
//	    return transcribe(ctx)
//	})
//
// Use Do to target a specific provider and bypass selection, CallWith to
// override the default selection context per call, and Reload to apply a
// new provider set without restarting: only providers whose configuration
// actually changed get fresh protection state.
//
// Every call outcome is recorded to the shared metrics tracker no matter
// which layer rejected it, so selection strategies see rejections too.
package guard
