// Package observe exports benchmark samples as OpenTelemetry metrics.
package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aweris/cachebench"
)

const (
	durationMetric = "cachebench.op.duration_ms"
	samplesMetric  = "cachebench.op.samples"
	failuresMetric = "cachebench.op.failures"
)

// Metrics implements cachebench.Recorder. Every recorded sample adds one
// duration per backend; every dropped iteration increments the failure
// counter.
type Metrics struct {
	duration metric.Float64Histogram
	samples  metric.Int64Counter
	failures metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	duration, err := meter.Float64Histogram(
		durationMetric,
		metric.WithDescription("Cache operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	samples, err := meter.Int64Counter(
		samplesMetric,
		metric.WithDescription("Number of recorded comparison samples"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		failuresMetric,
		metric.WithDescription("Number of dropped comparison iterations"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{duration: duration, samples: samples, failures: failures}, nil
}

func (m *Metrics) RecordSample(ctx context.Context, op cachebench.Op, s cachebench.Sample) {
	m.samples.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(op))))
	m.duration.Record(ctx, millis(s.Blob), metric.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("backend", "blob"),
	))
	m.duration.Record(ctx, millis(s.KV), metric.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("backend", "kv"),
	))
}

func (m *Metrics) RecordFailure(ctx context.Context, op cachebench.Op, err error) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("reason", reason(err)),
	))
}

// reason buckets err into a low-cardinality attribute value.
func reason(err error) string {
	switch {
	case errors.Is(err, cachebench.ErrMiss):
		return "miss"
	case errors.Is(err, cachebench.ErrBackendWrite):
		return "write"
	case errors.Is(err, cachebench.ErrBackendRead):
		return "read"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
