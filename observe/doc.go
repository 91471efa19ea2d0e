// Package observe provides structured logging and OpenTelemetry wiring for
// the guard engine. An Observer bundles a tracer, a meter, and a logger;
// disabled subsystems become no-ops so callers never branch on telemetry
// configuration.
package observe
