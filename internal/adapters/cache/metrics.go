package cache

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cacheMetricsCollection struct {
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	loads        metric.Int64Counter
	loadFailures metric.Int64Counter
	loadDuration metric.Float64Histogram
	evictions    metric.Int64Counter
}

var metrics cacheMetricsCollection

func init() {
	const name = "euris-resources/cache"
	meter := otel.Meter(name)

	int64Counter := func(name string, description string) metric.Int64Counter {
		counter, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			panic(fmt.Errorf("failed to create %s metric: %w", name, err))
		}
		return counter
	}

	loadDuration, err := meter.Float64Histogram(
		"cache/load_duration_seconds",
		metric.WithDescription("Time spent in cache loaders"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create load duration metric: %w", err))
	}

	metrics = cacheMetricsCollection{
		hits:         int64Counter("cache/hits", "Lookups answered from the cache"),
		misses:       int64Counter("cache/misses", "Lookups that started or joined a load"),
		loads:        int64Counter("cache/loads", "Loader invocations"),
		loadFailures: int64Counter("cache/load_failures", "Loader invocations that returned an error"),
		loadDuration: loadDuration,
		evictions:    int64Counter("cache/evictions", "Entries removed because they expired"),
	}
}

func cacheAttribute(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("cache", name))
}

func recordHit(ctx context.Context, name string) {
	metrics.hits.Add(ctx, 1, cacheAttribute(name))
}

func recordMiss(ctx context.Context, name string) {
	metrics.misses.Add(ctx, 1, cacheAttribute(name))
}

func recordLoad(ctx context.Context, name string, duration time.Duration, err error) {
	metrics.loads.Add(ctx, 1, cacheAttribute(name))
	metrics.loadDuration.Record(ctx, duration.Seconds(), cacheAttribute(name))
	if err != nil {
		metrics.loadFailures.Add(ctx, 1, cacheAttribute(name))
	}
}

func recordEviction(ctx context.Context, name string) {
	metrics.evictions.Add(ctx, 1, cacheAttribute(name))
}
