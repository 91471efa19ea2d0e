// Package metrics accumulates per-provider call statistics.
//
// The Tracker keeps monotonic in-memory counters (requests, failures,
// latency, cost) for the process lifetime; derived averages and error
// rates feed the selector's optimization strategies. Outcomes can be
// mirrored to OpenTelemetry instruments for export.
//
// State is in-memory only and resets on restart.
package metrics
