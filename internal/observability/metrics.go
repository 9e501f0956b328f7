// Package observability provides OpenTelemetry instrumentation for hunter.
package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	pkgerrors "hunter/pkg/errors"
)

const (
	instrumentationName = "hunter"
)

// Metrics holds all hunter metrics.
type Metrics struct {
	// Session transitions
	Transitions        metric.Int64Counter
	TransitionFailures metric.Int64Counter
	Aborts             metric.Int64Counter

	// Connectivity
	ProbeDuration metric.Float64Histogram
	ProbeFailures metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all instruments registered.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}

	meter := meterProvider.Meter(instrumentationName)
	m := &Metrics{}

	var err error

	m.Transitions, err = meter.Int64Counter(
		"hunter.transitions",
		metric.WithDescription("Session transitions run, by operation"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.TransitionFailures, err = meter.Int64Counter(
		"hunter.transition.failures",
		metric.WithDescription("Session transitions that returned an error"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.Aborts, err = meter.Int64Counter(
		"hunter.conflict.aborts",
		metric.WithDescription("Process conflicts the user declined to resolve"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	m.ProbeDuration, err = meter.Float64Histogram(
		"hunter.probe.duration",
		metric.WithDescription("Round-trip time of connectivity probes in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	m.ProbeFailures, err = meter.Int64Counter(
		"hunter.probe.failures",
		metric.WithDescription("Connectivity probes that failed"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTransition counts a finished transition. Aborted conflicts are
// counted separately from failures.
func (m *Metrics) RecordTransition(ctx context.Context, op string, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.Transitions.Add(ctx, 1, attrs)
	switch {
	case err == nil:
	case errors.Is(err, pkgerrors.ErrAborted):
		m.Aborts.Add(ctx, 1, attrs)
	default:
		m.TransitionFailures.Add(ctx, 1, attrs)
	}
}

// RecordProbe records the outcome of a connectivity probe.
func (m *Metrics) RecordProbe(ctx context.Context, elapsed time.Duration, err error) {
	if err != nil {
		m.ProbeFailures.Add(ctx, 1)
		return
	}
	m.ProbeDuration.Record(ctx, float64(elapsed.Milliseconds()))
}
