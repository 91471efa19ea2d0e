package guard

import (
	"sort"

	"github.com/voxguard/voxguard/metrics"
	"github.com/voxguard/voxguard/provider"
	"github.com/voxguard/voxguard/resilience"
)

// ProviderStatus is a point-in-time view of one provider's protection
// state. RateLimit and Bulkhead are nil when the provider has no limiter
// or concurrency cap configured.
type ProviderStatus struct {
	Provider  string
	Enabled   bool
	Breaker   resilience.BreakerSnapshot
	RateLimit *resilience.RateLimitStats
	Bulkhead  *resilience.BulkheadStats
	Metrics   metrics.Snapshot
}

// Status is the rollup across all configured providers. Healthy means
// every enabled provider's circuit is closed.
type Status struct {
	Healthy   bool
	Degraded  []string
	Providers []ProviderStatus
}

// Status returns the current state of one provider.
func (g *Guard) Status(providerID string) (ProviderStatus, error) {
	g.mu.RLock()
	rt, ok := g.runtimes[providerID]
	g.mu.RUnlock()
	if !ok {
		return ProviderStatus{}, &provider.UnavailableError{ID: providerID, Reason: "not configured"}
	}
	return g.statusOf(rt), nil
}

// StatusAll returns every provider's state plus an overall rollup,
// sorted by provider id.
func (g *Guard) StatusAll() Status {
	g.mu.RLock()
	runtimes := make([]*runtime, 0, len(g.runtimes))
	for _, rt := range g.runtimes {
		runtimes = append(runtimes, rt)
	}
	g.mu.RUnlock()

	st := Status{Healthy: true}
	for _, rt := range runtimes {
		ps := g.statusOf(rt)
		st.Providers = append(st.Providers, ps)
		if ps.Enabled && ps.Breaker.State != resilience.StateClosed {
			st.Healthy = false
			st.Degraded = append(st.Degraded, ps.Provider)
		}
	}
	sort.Slice(st.Providers, func(i, j int) bool {
		return st.Providers[i].Provider < st.Providers[j].Provider
	})
	sort.Strings(st.Degraded)
	return st
}

func (g *Guard) statusOf(rt *runtime) ProviderStatus {
	ps := ProviderStatus{
		Provider: rt.cfg.ID,
		Enabled:  rt.cfg.Enabled,
		Breaker:  rt.breaker.Snapshot(),
	}
	if rt.limiter != nil {
		stats := rt.limiter.Stats()
		ps.RateLimit = &stats
	}
	if rt.bulkhead != nil {
		stats := rt.bulkhead.Stats()
		ps.Bulkhead = &stats
	}
	if snap, ok := g.tracker.Snapshot(rt.cfg.ID); ok {
		ps.Metrics = snap
	} else {
		ps.Metrics = metrics.Snapshot{Provider: rt.cfg.ID}
	}
	return ps
}
