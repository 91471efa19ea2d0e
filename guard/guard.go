package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/voxguard/voxguard/metrics"
	"github.com/voxguard/voxguard/observe"
	"github.com/voxguard/voxguard/provider"
	"github.com/voxguard/voxguard/resilience"
	"github.com/voxguard/voxguard/selector"
)

// Operation performs one provider call attempt: typically building and
// sending the wire request. It must honor context cancellation.
type Operation func(ctx context.Context) (Result, error)

// Result carries what the engine needs from a completed call; the
// transcription payload itself stays with the caller.
type Result struct {
	// Cost is the billed cost of the call. Zero means "unknown" and the
	// provider's configured nominal cost is recorded instead.
	Cost float64
}

// Config configures a Guard.
type Config struct {
	// Providers is the ordered provider set. Order matters: it breaks
	// selection ties and decides fallback preference.
	Providers []provider.Config

	// Selection is the default selection context used by Call.
	Selection selector.Request
}

// Guard composes per-provider protection (rate limiter, circuit breaker,
// retry, optional bulkhead and timeout) with strategy-driven selection.
// One Guard owns one provider set; construct it once and share it.
type Guard struct {
	logger  observe.Logger
	tracer  trace.Tracer
	tracker *metrics.Tracker
	sel     *selector.Selector

	defaults selector.Request

	mu       sync.RWMutex
	runtimes map[string]*runtime
	configs  []provider.Config

	subsMu sync.RWMutex
	subs   []func(Event)
}

// runtime is one provider's protection triple plus the optional layers.
// Rebuilt as a unit when the provider's configuration changes; never
// mutated in place.
type runtime struct {
	cfg      provider.Config
	limiter  *resilience.RateLimiter
	breaker  *resilience.CircuitBreaker
	retry    *resilience.Retry
	bulkhead *resilience.Bulkhead
}

// Option configures a Guard.
type Option func(*options)

type options struct {
	logger observe.Logger
	meter  metric.Meter
	tracer trace.Tracer
	creds  selector.CredentialChecker
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeter mirrors call outcomes to OpenTelemetry instruments.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer wraps each guarded call in a span.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithCredentials sets the checker behind provider availability,
// typically a *secret.Resolver.
func WithCredentials(c selector.CredentialChecker) Option {
	return func(o *options) { o.creds = c }
}

// WithObserver wires logger, meter, and tracer from one Observer.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) {
		o.logger = obs.Logger()
		o.meter = obs.Meter()
		o.tracer = obs.Tracer()
	}
}

// New creates a Guard with one protection triple per configured provider.
func New(cfg Config, opts ...Option) (*Guard, error) {
	if err := provider.ValidateAll(cfg.Providers); err != nil {
		return nil, err
	}

	o := &options{
		logger: observe.NopLogger(),
		meter:  metricnoop.NewMeterProvider().Meter("noop"),
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
	}
	for _, opt := range opts {
		opt(o)
	}

	instruments, err := metrics.NewInstruments(o.meter)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	tracker := metrics.NewTracker(metrics.WithInstruments(instruments))

	g := &Guard{
		logger:   o.logger,
		tracer:   o.tracer,
		tracker:  tracker,
		defaults: cfg.Selection,
		runtimes: make(map[string]*runtime, len(cfg.Providers)),
		configs:  append([]provider.Config(nil), cfg.Providers...),
	}
	g.sel = selector.New(cfg.Providers, tracker, o.creds)

	for i := range cfg.Providers {
		pc := cfg.Providers[i]
		g.runtimes[pc.ID] = g.buildRuntime(pc)
		tracker.SetModel(pc.ID, pc.Model)
	}

	return g, nil
}

// buildRuntime constructs a provider's protection triple from its config.
func (g *Guard) buildRuntime(pc provider.Config) *runtime {
	id := pc.ID
	log := g.logger.WithProvider(id)

	rt := &runtime{cfg: pc}

	rt.breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: pc.Breaker.FailureThreshold,
		SuccessThreshold: pc.Breaker.SuccessThreshold,
		OpenTimeout:      pc.Breaker.OpenTimeout,
		OnStateChange: func(from, to resilience.State) {
			log.Warn(context.Background(), "circuit state changed",
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
			g.publish(Event{
				Type:     EventBreakerStateChange,
				Provider: id,
				From:     from,
				To:       to,
				Time:     time.Now(),
			})
		},
	})

	if pc.RateLimit.RequestsPerWindow > 0 {
		rt.limiter = resilience.NewRateLimiter(resilience.RateLimitConfig{
			RequestsPerWindow: pc.RateLimit.RequestsPerWindow,
			Window:            pc.RateLimit.Window,
			QueueEnabled:      pc.RateLimit.QueueEnabled,
			MaxQueueSize:      pc.RateLimit.MaxQueueSize,
		})
	}

	rt.retry = resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts: pc.Retry.MaxAttempts,
		BaseDelay:   pc.Retry.BaseDelay,
		MaxDelay:    pc.Retry.MaxDelay,
		Strategy:    parseBackoff(pc.Retry.Backoff),
		Jitter:      pc.Retry.Jitter,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Debug(context.Background(), "retrying provider call",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "error", Value: err.Error()},
			)
		},
	})

	if pc.MaxConcurrency > 0 {
		rt.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: pc.MaxConcurrency,
		})
	}

	return rt
}

// rejected reports whether the error came from an admission layer, meaning
// the operation itself was never invoked.
func rejected(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrRateLimited) ||
		errors.Is(err, resilience.ErrQueueFull) ||
		errors.Is(err, resilience.ErrBulkheadFull)
}

func parseBackoff(s string) resilience.BackoffStrategy {
	switch s {
	case "linear":
		return resilience.BackoffLinear
	case "fixed":
		return resilience.BackoffFixed
	default:
		return resilience.BackoffExponential
	}
}

// Call selects a provider using the default selection context, then runs
// the operation through its protection layers. The chosen provider id is
// returned even when the call fails, so callers can report which provider
// was attempted.
func (g *Guard) Call(ctx context.Context, op Operation) (string, Result, error) {
	return g.CallWith(ctx, g.defaults, op)
}

// CallWith is Call with an explicit selection context.
func (g *Guard) CallWith(ctx context.Context, req selector.Request, op Operation) (string, Result, error) {
	id, err := g.sel.Pick(ctx, req)
	if err != nil {
		return "", Result{}, err
	}
	res, err := g.Do(ctx, id, op)
	return id, res, err
}

// Do runs the operation against a specific provider, nested as
// rate limiter, then bulkhead, then circuit breaker, then retry, then the
// per-attempt timeout. The outcome is recorded to metrics no matter which
// layer rejected the call.
func (g *Guard) Do(ctx context.Context, providerID string, op Operation) (Result, error) {
	g.mu.RLock()
	rt, ok := g.runtimes[providerID]
	g.mu.RUnlock()
	if !ok {
		return Result{}, &provider.UnavailableError{ID: providerID, Reason: "not configured"}
	}

	ctx, span := g.tracer.Start(ctx, "voxguard.call",
		trace.WithAttributes(attribute.String("provider.id", providerID)),
	)
	defer span.End()

	start := time.Now()
	var res Result

	attempt := func(ctx context.Context) error {
		return resilience.ExecuteWithTimeout(ctx, rt.cfg.Timeout, func(ctx context.Context) error {
			r, err := op(ctx)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	}

	execute := func(ctx context.Context) error {
		return rt.breaker.Execute(ctx, func(ctx context.Context) error {
			return rt.retry.ExecuteNamed(ctx, providerID, attempt)
		})
	}

	if rt.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return rt.bulkhead.Execute(ctx, inner)
		}
	}

	if rt.limiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			if err := rt.limiter.Acquire(ctx); err != nil {
				return err
			}
			return inner(ctx)
		}
	}

	err := execute(ctx)

	outcome := metrics.Outcome{
		Success: err == nil,
		Latency: time.Since(start),
		Err:     err,
	}
	if rejected(err) {
		// The operation never ran; its latency would only dilute the
		// provider's average.
		outcome.Latency = 0
	}
	if err == nil {
		outcome.Cost = res.Cost
		if outcome.Cost == 0 {
			outcome.Cost = rt.cfg.CostPerRequest
		}
	}
	g.tracker.Record(ctx, providerID, outcome)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.WithProvider(providerID).Warn(ctx, "guarded call failed",
			observe.Field{Key: "latency_ms", Value: outcome.Latency.Milliseconds()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return Result{}, err
	}

	span.SetStatus(codes.Ok, "")
	g.logger.WithProvider(providerID).Debug(ctx, "guarded call succeeded",
		observe.Field{Key: "latency_ms", Value: outcome.Latency.Milliseconds()},
	)
	return res, nil
}

// ResetBreaker forces a provider's circuit closed. Operator override.
func (g *Guard) ResetBreaker(providerID string) error {
	g.mu.RLock()
	rt, ok := g.runtimes[providerID]
	g.mu.RUnlock()
	if !ok {
		return &provider.UnavailableError{ID: providerID, Reason: "not configured"}
	}
	rt.breaker.Reset()
	return nil
}

// Metrics returns the tracker behind this guard for read access.
func (g *Guard) Metrics() *metrics.Tracker {
	return g.tracker
}

// Providers returns a copy of the current provider configuration set, in
// configuration order.
func (g *Guard) Providers() []provider.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]provider.Config(nil), g.configs...)
}

// Reload applies a new provider set. Changed providers get a freshly
// built protection triple and zeroed counters, swapped in atomically;
// unchanged providers keep their state. Removed providers are dropped.
func (g *Guard) Reload(providers []provider.Config) error {
	if err := provider.ValidateAll(providers); err != nil {
		return err
	}

	g.mu.Lock()

	next := make(map[string]*runtime, len(providers))
	var events []Event

	for i := range providers {
		pc := providers[i]
		old, exists := g.runtimes[pc.ID]
		switch {
		case !exists:
			next[pc.ID] = g.buildRuntime(pc)
			events = append(events, Event{Type: EventProviderAdded, Provider: pc.ID, Time: time.Now()})
		case old.cfg != pc:
			// Whole triple replaced as a unit; the old one is left for
			// in-flight calls to finish against and then discarded.
			next[pc.ID] = g.buildRuntime(pc)
			g.tracker.Reset(pc.ID)
			events = append(events, Event{Type: EventProviderRebuilt, Provider: pc.ID, Time: time.Now()})
		default:
			next[pc.ID] = old
		}
		g.tracker.SetModel(pc.ID, pc.Model)
	}

	for id := range g.runtimes {
		if _, kept := next[id]; !kept {
			g.tracker.Reset(id)
			events = append(events, Event{Type: EventProviderRemoved, Provider: id, Time: time.Now()})
		}
	}

	g.runtimes = next
	g.configs = append([]provider.Config(nil), providers...)
	g.mu.Unlock()

	g.sel.Update(providers)

	for _, ev := range events {
		g.logger.WithProvider(ev.Provider).Info(context.Background(), "provider configuration changed",
			observe.Field{Key: "event", Value: ev.Type.String()},
		)
		g.publish(ev)
	}
	return nil
}
