package guard

import (
	"time"

	"github.com/voxguard/voxguard/resilience"
)

// EventType identifies a lifecycle event published by a Guard.
type EventType int

const (
	// EventBreakerStateChange fires when a provider's circuit breaker
	// changes state. From and To carry the transition.
	EventBreakerStateChange EventType = iota

	// EventProviderAdded fires when a reload introduces a provider.
	EventProviderAdded

	// EventProviderRebuilt fires when a reload replaces a provider's
	// protection state because its configuration changed.
	EventProviderRebuilt

	// EventProviderRemoved fires when a reload drops a provider.
	EventProviderRemoved
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventBreakerStateChange:
		return "breaker_state_change"
	case EventProviderAdded:
		return "provider_added"
	case EventProviderRebuilt:
		return "provider_rebuilt"
	case EventProviderRemoved:
		return "provider_removed"
	default:
		return "unknown"
	}
}

// Event describes one lifecycle event. From and To are only meaningful
// for EventBreakerStateChange.
type Event struct {
	Type     EventType
	Provider string
	From     resilience.State
	To       resilience.State
	Time     time.Time
}

// Subscribe registers a handler for lifecycle events. Handlers are
// invoked synchronously on the goroutine that produced the event and
// must not block or call back into the Guard's breakers.
func (g *Guard) Subscribe(fn func(Event)) {
	g.subsMu.Lock()
	g.subs = append(g.subs, fn)
	g.subsMu.Unlock()
}

func (g *Guard) publish(ev Event) {
	g.subsMu.RLock()
	subs := g.subs
	g.subsMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
