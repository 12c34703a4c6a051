package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cacheMetrics struct {
	mutations metric.Int64Counter
	reads     metric.Int64Counter
	pending   metric.Int64UpDownCounter
	settle    metric.Float64Histogram
}

func newCacheMetrics(meter metric.Meter) (*cacheMetrics, error) {
	var (
		m   cacheMetrics
		err error
	)

	m.mutations, err = meter.Int64Counter("catalog.mutations",
		metric.WithDescription("Settled cache mutations by operation and outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "mutations counter")
	}

	m.reads, err = meter.Int64Counter("catalog.reads",
		metric.WithDescription("Cache reads by kind and hit/miss"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "reads counter")
	}

	m.pending, err = meter.Int64UpDownCounter("catalog.pending",
		metric.WithDescription("Mutations issued but not yet settled"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "pending counter")
	}

	m.settle, err = meter.Float64Histogram("catalog.settle.duration",
		metric.WithDescription("Time from issuing a mutation to its settlement"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "settle histogram")
	}

	return &m, nil
}

func (m *cacheMetrics) read(ctx context.Context, kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (m *cacheMetrics) issued(ctx context.Context) {
	m.pending.Add(ctx, 1)
}

func (m *cacheMetrics) settled(ctx context.Context, op Op, outcome string, took time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("op", string(op)),
		attribute.String("outcome", outcome),
	)
	m.pending.Add(ctx, -1)
	m.mutations.Add(ctx, 1, attrs)
	m.settle.Record(ctx, took.Seconds(), attrs)
}
