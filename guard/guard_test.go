package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxguard/voxguard/provider"
	"github.com/voxguard/voxguard/resilience"
	"github.com/voxguard/voxguard/selector"
)

func testProvider(id string) provider.Config {
	return provider.Config{
		ID:             id,
		Enabled:        true,
		Model:          "base",
		CostPerRequest: 0.006,
		Retry: provider.RetrySettings{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Backoff:     "fixed",
		},
	}
}

func newTestGuard(t *testing.T, configs ...provider.Config) *Guard {
	t.Helper()
	g, err := New(Config{Providers: configs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	_, err := New(Config{Providers: []provider.Config{
		testProvider("whisper"),
		testProvider("whisper"),
	}})
	if err == nil {
		t.Fatal("New() with duplicate provider ids should fail")
	}
}

func TestDo_Success(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"))

	res, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{Cost: 0.01}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Cost != 0.01 {
		t.Errorf("res.Cost = %v, want 0.01", res.Cost)
	}

	snap, ok := g.Metrics().Snapshot("whisper")
	if !ok {
		t.Fatal("no metrics recorded for whisper")
	}
	if snap.TotalRequests != 1 || snap.FailedRequests != 0 {
		t.Errorf("snapshot = %d total / %d failed, want 1 / 0", snap.TotalRequests, snap.FailedRequests)
	}
	if snap.TotalCost != 0.01 {
		t.Errorf("TotalCost = %v, want reported cost 0.01", snap.TotalCost)
	}
}

func TestDo_DefaultsCostFromConfig(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"))

	if _, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{}, nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	snap, _ := g.Metrics().Snapshot("whisper")
	if snap.TotalCost != 0.006 {
		t.Errorf("TotalCost = %v, want configured 0.006", snap.TotalCost)
	}
}

func TestDo_UnknownProvider(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"))

	_, err := g.Do(context.Background(), "nope", func(ctx context.Context) (Result, error) {
		return Result{}, nil
	})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("Do() error = %v, want provider.ErrUnavailable", err)
	}
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"))

	calls := 0
	res, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		calls++
		if calls < 3 {
			return Result{}, &resilience.StatusError{Status: 503}
		}
		return Result{Cost: 0.02}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
	if res.Cost != 0.02 {
		t.Errorf("res.Cost = %v, want 0.02", res.Cost)
	}

	// One guarded call is one metrics outcome, however many attempts
	// it took.
	snap, _ := g.Metrics().Snapshot("whisper")
	if snap.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", snap.TotalRequests)
	}
}

func TestDo_NonRetryableFailsOnce(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"))

	authErr := &resilience.StatusError{Status: 401}
	calls := 0
	_, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		calls++
		return Result{}, authErr
	})
	if !errors.Is(err, authErr) {
		t.Errorf("Do() error = %v, want the original auth error", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}

	snap, _ := g.Metrics().Snapshot("whisper")
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snap.FailedRequests)
	}
	if snap.TotalCost != 0 {
		t.Errorf("TotalCost = %v, want 0 for a failed call", snap.TotalCost)
	}
}

func TestDo_CircuitOpensAndRejects(t *testing.T) {
	cfg := testProvider("whisper")
	cfg.Breaker = provider.BreakerSettings{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
	}
	g := newTestGuard(t, cfg)

	var events []Event
	g.Subscribe(func(ev Event) { events = append(events, ev) })

	boom := &resilience.StatusError{Status: 401}
	for i := 0; i < 2; i++ {
		if _, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
			return Result{}, boom
		}); err == nil {
			t.Fatal("Do() should fail")
		}
	}

	calls := 0
	_, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		calls++
		return Result{}, nil
	})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Do() error = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Error("operation ran despite open circuit")
	}

	// The rejection still counts toward the provider's failure metrics.
	snap, _ := g.Metrics().Snapshot("whisper")
	if snap.FailedRequests != 3 {
		t.Errorf("FailedRequests = %d, want 3", snap.FailedRequests)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != EventBreakerStateChange || events[0].Provider != "whisper" {
		t.Errorf("event = %+v, want breaker state change for whisper", events[0])
	}
	if events[0].From != resilience.StateClosed || events[0].To != resilience.StateOpen {
		t.Errorf("transition = %s -> %s, want closed -> open", events[0].From, events[0].To)
	}
}

func TestDo_RateLimitedImmediateMode(t *testing.T) {
	cfg := testProvider("whisper")
	cfg.RateLimit = provider.RateLimitSettings{
		RequestsPerWindow: 1,
		Window:            time.Hour,
	}
	g := newTestGuard(t, cfg)

	ok := func(ctx context.Context) (Result, error) { return Result{}, nil }

	if _, err := g.Do(context.Background(), "whisper", ok); err != nil {
		t.Fatalf("first Do() error = %v", err)
	}
	_, err := g.Do(context.Background(), "whisper", ok)
	if !errors.Is(err, resilience.ErrRateLimited) {
		t.Errorf("second Do() error = %v, want ErrRateLimited", err)
	}

	snap, _ := g.Metrics().Snapshot("whisper")
	if snap.TotalRequests != 2 || snap.FailedRequests != 1 {
		t.Errorf("snapshot = %d total / %d failed, want 2 / 1", snap.TotalRequests, snap.FailedRequests)
	}
}

func TestDo_TimeoutBoundsAttempt(t *testing.T) {
	cfg := testProvider("whisper")
	cfg.Timeout = 10 * time.Millisecond
	cfg.Retry.MaxAttempts = 1
	g := newTestGuard(t, cfg)

	_, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		select {
		case <-time.After(time.Second):
			return Result{}, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	})
	if !errors.Is(err, resilience.ErrTimeout) {
		t.Errorf("Do() error = %v, want ErrTimeout", err)
	}
}

func TestDo_BulkheadCapsConcurrency(t *testing.T) {
	cfg := testProvider("whisper")
	cfg.MaxConcurrency = 1
	g := newTestGuard(t, cfg)

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
			close(entered)
			<-release
			return Result{}, nil
		})
	}()
	<-entered

	_, err := g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{}, nil
	})
	if !errors.Is(err, resilience.ErrBulkheadFull) {
		t.Errorf("Do() error = %v, want ErrBulkheadFull", err)
	}

	close(release)
	wg.Wait()
}

func TestCall_UsesDefaultSelection(t *testing.T) {
	g, err := New(Config{
		Providers: []provider.Config{testProvider("whisper"), testProvider("deepgram")},
		Selection: selector.Request{
			Strategy:  selector.StrategyManual,
			Requested: "deepgram",
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id, _, err := g.Call(context.Background(), func(ctx context.Context) (Result, error) {
		return Result{}, nil
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if id != "deepgram" {
		t.Errorf("Call() chose %q, want deepgram", id)
	}
}

func TestCallWith_OverridesSelection(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"), testProvider("deepgram"))

	id, _, err := g.CallWith(context.Background(), selector.Request{
		Strategy: selector.StrategyManual,
		Forced:   "whisper",
	}, func(ctx context.Context) (Result, error) {
		return Result{}, nil
	})
	if err != nil {
		t.Fatalf("CallWith() error = %v", err)
	}
	if id != "whisper" {
		t.Errorf("CallWith() chose %q, want forced whisper", id)
	}
}

func TestResetBreaker(t *testing.T) {
	cfg := testProvider("whisper")
	cfg.Breaker.FailureThreshold = 1
	g := newTestGuard(t, cfg)

	g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{}, &resilience.StatusError{Status: 401}
	})

	st, err := g.Status("whisper")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Breaker.State != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want OPEN", st.Breaker.State)
	}

	if err := g.ResetBreaker("whisper"); err != nil {
		t.Fatalf("ResetBreaker() error = %v", err)
	}
	st, _ = g.Status("whisper")
	if st.Breaker.State != resilience.StateClosed {
		t.Errorf("breaker state after reset = %v, want CLOSED", st.Breaker.State)
	}

	if err := g.ResetBreaker("nope"); !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("ResetBreaker(unknown) error = %v, want provider.ErrUnavailable", err)
	}
}

func TestReload(t *testing.T) {
	g := newTestGuard(t, testProvider("whisper"), testProvider("deepgram"))

	var events []Event
	g.Subscribe(func(ev Event) { events = append(events, ev) })

	// Seed state so the reset on rebuild is observable.
	g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{}, nil
	})

	changed := testProvider("whisper")
	changed.CostPerRequest = 0.5
	added := testProvider("assembly")

	if err := g.Reload([]provider.Config{changed, added}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	// whisper rebuilt: counters zeroed.
	if snap, _ := g.Metrics().Snapshot("whisper"); snap.TotalRequests != 0 {
		t.Errorf("whisper TotalRequests after rebuild = %d, want 0", snap.TotalRequests)
	}

	// deepgram removed: no longer callable.
	if _, err := g.Do(context.Background(), "deepgram", func(ctx context.Context) (Result, error) {
		return Result{}, nil
	}); !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("Do(removed) error = %v, want provider.ErrUnavailable", err)
	}

	// assembly added: callable and using its configuration.
	if _, err := g.Do(context.Background(), "assembly", func(ctx context.Context) (Result, error) {
		return Result{}, nil
	}); err != nil {
		t.Errorf("Do(added) error = %v", err)
	}

	types := map[EventType]string{}
	for _, ev := range events {
		types[ev.Type] = ev.Provider
	}
	if types[EventProviderRebuilt] != "whisper" {
		t.Errorf("rebuilt event = %q, want whisper", types[EventProviderRebuilt])
	}
	if types[EventProviderAdded] != "assembly" {
		t.Errorf("added event = %q, want assembly", types[EventProviderAdded])
	}
	if types[EventProviderRemoved] != "deepgram" {
		t.Errorf("removed event = %q, want deepgram", types[EventProviderRemoved])
	}
}

func TestReload_UnchangedProviderKeepsState(t *testing.T) {
	cfg := testProvider("whisper")
	cfg.Breaker.FailureThreshold = 1
	g := newTestGuard(t, cfg)

	g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{}, &resilience.StatusError{Status: 401}
	})

	if err := g.Reload([]provider.Config{cfg}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	st, _ := g.Status("whisper")
	if st.Breaker.State != resilience.StateOpen {
		t.Errorf("breaker state after identical reload = %v, want still OPEN", st.Breaker.State)
	}
}

func TestStatusAll(t *testing.T) {
	healthy := testProvider("deepgram")
	failing := testProvider("whisper")
	failing.Breaker.FailureThreshold = 1
	failing.RateLimit = provider.RateLimitSettings{RequestsPerWindow: 10, Window: time.Minute}
	g := newTestGuard(t, failing, healthy)

	st := g.StatusAll()
	if !st.Healthy {
		t.Error("fresh guard should report healthy")
	}
	if len(st.Providers) != 2 {
		t.Fatalf("got %d provider statuses, want 2", len(st.Providers))
	}
	// Sorted by id.
	if st.Providers[0].Provider != "deepgram" || st.Providers[1].Provider != "whisper" {
		t.Errorf("status order = %q, %q; want deepgram, whisper", st.Providers[0].Provider, st.Providers[1].Provider)
	}
	if st.Providers[1].RateLimit == nil {
		t.Error("whisper should expose rate limit stats")
	}
	if st.Providers[0].RateLimit != nil {
		t.Error("deepgram has no limiter and should expose nil stats")
	}

	g.Do(context.Background(), "whisper", func(ctx context.Context) (Result, error) {
		return Result{}, &resilience.StatusError{Status: 401}
	})

	st = g.StatusAll()
	if st.Healthy {
		t.Error("open breaker should degrade the rollup")
	}
	if len(st.Degraded) != 1 || st.Degraded[0] != "whisper" {
		t.Errorf("Degraded = %v, want [whisper]", st.Degraded)
	}
}
