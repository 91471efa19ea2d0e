package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments mirrors tracker outcomes to OpenTelemetry.
type Instruments struct {
	totalCount  metric.Int64Counter
	errorCount  metric.Int64Counter
	latencyHist metric.Float64Histogram
	costCounter metric.Float64Counter
}

// NewInstruments creates the OpenTelemetry instruments on the given meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	totalCount, err := meter.Int64Counter(
		"stt.call.total",
		metric.WithDescription("Total number of guarded provider calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"stt.call.errors",
		metric.WithDescription("Total number of failed provider calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	latencyHist, err := meter.Float64Histogram(
		"stt.call.duration_ms",
		metric.WithDescription("Provider call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	costCounter, err := meter.Float64Counter(
		"stt.call.cost",
		metric.WithDescription("Accumulated provider cost"),
		metric.WithUnit("{usd}"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		totalCount:  totalCount,
		errorCount:  errorCount,
		latencyHist: latencyHist,
		costCounter: costCounter,
	}, nil
}

func (in *Instruments) record(ctx context.Context, providerID, model string, outcome Outcome) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.id", providerID),
	}
	if model != "" {
		attrs = append(attrs, attribute.String("provider.model", model))
	}
	opt := metric.WithAttributes(attrs...)

	in.totalCount.Add(ctx, 1, opt)
	if !outcome.Success {
		in.errorCount.Add(ctx, 1, opt)
	}
	in.latencyHist.Record(ctx, float64(outcome.Latency.Milliseconds()), opt)
	if outcome.Cost > 0 {
		in.costCounter.Add(ctx, outcome.Cost, opt)
	}
}
