package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Outcome describes the result of one guarded provider call.
type Outcome struct {
	Success bool
	Latency time.Duration
	Cost    float64
	Err     error
}

// Snapshot is a point-in-time copy of one provider's counters with the
// derived values filled in.
type Snapshot struct {
	Provider       string
	TotalRequests  int64
	FailedRequests int64
	TotalLatency   time.Duration
	TotalCost      float64
	LastUpdated    time.Time

	// AverageLatency is TotalLatency / TotalRequests; zero when no
	// requests have been recorded.
	AverageLatency time.Duration

	// ErrorRate is FailedRequests / TotalRequests; zero when no requests
	// have been recorded.
	ErrorRate float64

	// AverageCost is TotalCost / TotalRequests; zero when no requests
	// have been recorded.
	AverageCost float64
}

type entry struct {
	model          string
	totalRequests  int64
	failedRequests int64
	totalLatency   time.Duration
	totalCost      float64
	lastUpdated    time.Time
}

// Tracker accumulates per-provider counters for the process lifetime.
// Counters are monotonic; there is no windowing or decay.
type Tracker struct {
	mu          sync.RWMutex
	providers   map[string]*entry
	instruments *Instruments
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInstruments mirrors every recorded outcome to OpenTelemetry.
func WithInstruments(in *Instruments) Option {
	return func(t *Tracker) {
		t.instruments = in
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{providers: make(map[string]*entry)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetModel associates a model label with a provider for telemetry
// attributes. Safe to call before any Record.
func (t *Tracker) SetModel(providerID, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entryLocked(providerID).model = model
}

// Record accumulates one call outcome for the provider.
func (t *Tracker) Record(ctx context.Context, providerID string, outcome Outcome) {
	t.mu.Lock()
	e := t.entryLocked(providerID)
	e.totalRequests++
	if !outcome.Success {
		e.failedRequests++
	}
	e.totalLatency += outcome.Latency
	e.totalCost += outcome.Cost
	e.lastUpdated = time.Now()
	model := e.model
	instruments := t.instruments
	t.mu.Unlock()

	if instruments != nil {
		instruments.record(ctx, providerID, model, outcome)
	}
}

// Snapshot returns a copy of one provider's counters. The second return is
// false when the provider has never been recorded.
func (t *Tracker) Snapshot(providerID string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.providers[providerID]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(providerID), true
}

// SnapshotAll returns copies of every provider's counters, sorted by
// provider id for deterministic iteration.
func (t *Tracker) SnapshotAll() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Snapshot, 0, len(t.providers))
	for id, e := range t.providers {
		out = append(out, e.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Reset discards one provider's counters. Used when a provider's
// configuration changes and its protection triple is rebuilt.
func (t *Tracker) Reset(providerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.providers, providerID)
}

func (t *Tracker) entryLocked(providerID string) *entry {
	e, ok := t.providers[providerID]
	if !ok {
		e = &entry{}
		t.providers[providerID] = e
	}
	return e
}

func (e *entry) snapshot(id string) Snapshot {
	s := Snapshot{
		Provider:       id,
		TotalRequests:  e.totalRequests,
		FailedRequests: e.failedRequests,
		TotalLatency:   e.totalLatency,
		TotalCost:      e.totalCost,
		LastUpdated:    e.lastUpdated,
	}
	if e.totalRequests > 0 {
		s.AverageLatency = e.totalLatency / time.Duration(e.totalRequests)
		s.ErrorRate = float64(e.failedRequests) / float64(e.totalRequests)
		s.AverageCost = e.totalCost / float64(e.totalRequests)
	}
	return s
}
