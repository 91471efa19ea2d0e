package selector

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/voxguard/voxguard/metrics"
	"github.com/voxguard/voxguard/provider"
)

// ABTest configures an A/B traffic split.
type ABTest struct {
	// TrafficSplit is the fraction of traffic routed to Primary, in
	// [0, 1]. 1 routes everything to Primary, 0 everything to Secondary.
	TrafficSplit float64

	// Primary and Secondary are provider ids. An empty Secondary routes
	// the whole split to Primary.
	Primary   string
	Secondary string
}

// Request describes one selection decision.
type Request struct {
	Strategy Strategy

	// Requested is the provider id for StrategyManual.
	Requested string

	// Forced bypasses strategy evaluation entirely when non-empty.
	// Operator and test hook.
	Forced string

	// FallbackEnabled substitutes the first other available provider in
	// configuration order when the chosen one is unavailable.
	FallbackEnabled bool

	AB ABTest
}

// CredentialChecker reports whether a credential reference is usable.
// Implemented by *secret.Resolver.
type CredentialChecker interface {
	Check(ctx context.Context, ref string) error
}

// Selector chooses a provider for each call using tracker statistics.
// Safe for concurrent use.
type Selector struct {
	creds   CredentialChecker
	tracker *metrics.Tracker

	mu        sync.Mutex
	providers []provider.Config
	rrNext    int
	randFloat func() float64
}

// New creates a selector over an ordered provider set. The tracker supplies
// the statistics behind the optimization strategies; creds may be nil when
// credential availability should not be checked.
func New(providers []provider.Config, tracker *metrics.Tracker, creds CredentialChecker) *Selector {
	return &Selector{
		creds:     creds,
		tracker:   tracker,
		providers: append([]provider.Config(nil), providers...),
		randFloat: rand.Float64,
	}
}

// Update replaces the provider set, preserving round-robin position by id
// order as far as possible.
func (s *Selector) Update(providers []provider.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append([]provider.Config(nil), providers...)
	if len(s.providers) > 0 {
		s.rrNext %= len(s.providers)
	} else {
		s.rrNext = 0
	}
}

// Pick chooses a provider id for the request. When the strategy's choice is
// unavailable and fallback is enabled, the first other available provider
// in configuration order is substituted; otherwise *provider.UnavailableError
// is returned.
func (s *Selector) Pick(ctx context.Context, req Request) (string, error) {
	chosen, err := s.choose(ctx, req)
	if err != nil {
		return "", err
	}

	if unavailable := s.unavailable(ctx, chosen); unavailable != nil {
		if !req.FallbackEnabled {
			return "", unavailable
		}
		return s.fallback(ctx, chosen)
	}
	return chosen, nil
}

// choose evaluates the forced override or the strategy, without the
// availability check.
func (s *Selector) choose(ctx context.Context, req Request) (string, error) {
	if req.Forced != "" {
		return req.Forced, nil
	}

	switch req.Strategy {
	case StrategyManual:
		if req.Requested == "" {
			return "", &provider.UnavailableError{Reason: "manual strategy without a requested provider"}
		}
		return req.Requested, nil

	case StrategyPerformance:
		return s.best(ctx, func(a, b metrics.Snapshot) bool {
			return a.AverageLatency < b.AverageLatency
		})

	case StrategyCost:
		return s.best(ctx, func(a, b metrics.Snapshot) bool {
			return a.AverageCost < b.AverageCost
		})

	case StrategyQuality:
		return s.best(ctx, func(a, b metrics.Snapshot) bool {
			if a.ErrorRate != b.ErrorRate {
				return a.ErrorRate < b.ErrorRate
			}
			return a.AverageLatency < b.AverageLatency
		})

	case StrategyRoundRobin:
		return s.roundRobin(ctx)

	case StrategyABTest:
		return s.abPick(req.AB)

	default:
		return "", &provider.UnavailableError{Reason: "unknown selection strategy"}
	}
}

// best scans available providers in configuration order and keeps the first
// one that wins every comparison, so ties resolve to insertion order.
func (s *Selector) best(ctx context.Context, less func(a, b metrics.Snapshot) bool) (string, error) {
	s.mu.Lock()
	candidates := append([]provider.Config(nil), s.providers...)
	s.mu.Unlock()

	var bestID string
	var bestSnap metrics.Snapshot
	for _, cfg := range candidates {
		if s.unavailable(ctx, cfg.ID) != nil {
			continue
		}
		snap, _ := s.tracker.Snapshot(cfg.ID)
		snap.Provider = cfg.ID
		if bestID == "" || less(snap, bestSnap) {
			bestID = cfg.ID
			bestSnap = snap
		}
	}
	if bestID == "" {
		return "", &provider.UnavailableError{Reason: "no enabled provider"}
	}
	return bestID, nil
}

// roundRobin advances one position per call over enabled providers.
func (s *Selector) roundRobin(ctx context.Context) (string, error) {
	s.mu.Lock()
	candidates := append([]provider.Config(nil), s.providers...)
	start := s.rrNext
	s.mu.Unlock()

	n := len(candidates)
	for i := 0; i < n; i++ {
		cfg := candidates[(start+i)%n]
		if s.unavailable(ctx, cfg.ID) == nil {
			s.mu.Lock()
			s.rrNext = (start + i + 1) % n
			s.mu.Unlock()
			return cfg.ID, nil
		}
	}
	return "", &provider.UnavailableError{Reason: "no enabled provider"}
}

// abPick draws uniformly in [0,1) and routes below the split to primary.
func (s *Selector) abPick(ab ABTest) (string, error) {
	if ab.Primary == "" {
		return "", &provider.UnavailableError{Reason: "ab test without a primary provider"}
	}
	if ab.Secondary == "" {
		return ab.Primary, nil
	}

	s.mu.Lock()
	draw := s.randFloat()
	s.mu.Unlock()

	if draw < ab.TrafficSplit {
		return ab.Primary, nil
	}
	return ab.Secondary, nil
}

// fallback returns the first available provider other than exclude, in
// configuration order.
func (s *Selector) fallback(ctx context.Context, exclude string) (string, error) {
	s.mu.Lock()
	candidates := append([]provider.Config(nil), s.providers...)
	s.mu.Unlock()

	for _, cfg := range candidates {
		if cfg.ID == exclude {
			continue
		}
		if s.unavailable(ctx, cfg.ID) == nil {
			return cfg.ID, nil
		}
	}
	return "", &provider.UnavailableError{Reason: "no enabled provider"}
}

// unavailable returns nil when the provider exists, is enabled, and its
// credential reference resolves.
func (s *Selector) unavailable(ctx context.Context, id string) error {
	s.mu.Lock()
	var cfg *provider.Config
	for i := range s.providers {
		if s.providers[i].ID == id {
			cfg = &s.providers[i]
			break
		}
	}
	s.mu.Unlock()

	if cfg == nil {
		return &provider.UnavailableError{ID: id, Reason: "not configured"}
	}
	if !cfg.Enabled {
		return &provider.UnavailableError{ID: id, Reason: "disabled"}
	}
	if cfg.CredentialRef != "" && s.creds != nil {
		if err := s.creds.Check(ctx, cfg.CredentialRef); err != nil {
			return &provider.UnavailableError{ID: id, Reason: "missing credential"}
		}
	}
	return nil
}
