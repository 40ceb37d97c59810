package cache

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type acquireOutcome string

const (
	outcomeHit  acquireOutcome = "hit"
	outcomeWait acquireOutcome = "wait"
	outcomeMiss acquireOutcome = "miss"
)

type evictionReason string

const (
	reasonIdle     evictionReason = "idle"
	reasonForced   evictionReason = "forced"
	reasonShutdown evictionReason = "shutdown"
)

type cacheMetricsCollection struct {
	acquireCount  metric.Int64Counter
	loadDuration  metric.Float64Histogram
	loadFailures  metric.Int64Counter
	evictionCount metric.Int64Counter
	monitorTicks  metric.Int64Counter
}

var metrics cacheMetricsCollection

func init() {
	const name = "assetcache/cache"
	meter := otel.Meter(name)

	acquireCount, err := meter.Int64Counter(
		"cache/acquire_count",
		metric.WithDescription("Number of acquires by how they were served"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create acquire count metric: %w", err))
	}

	loadDuration, err := meter.Float64Histogram(
		"cache/load_duration_seconds",
		metric.WithDescription("Time spent loading assets from the asset store"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create load duration metric: %w", err))
	}

	loadFailures, err := meter.Int64Counter(
		"cache/load_failures",
		metric.WithDescription("Number of failed asset loads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create load failures metric: %w", err))
	}

	evictionCount, err := meter.Int64Counter(
		"cache/eviction_count",
		metric.WithDescription("Number of evicted assets by reason"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create eviction count metric: %w", err))
	}

	monitorTicks, err := meter.Int64Counter(
		"cache/monitor_ticks",
		metric.WithDescription("Number of memory checks run by the memory monitor"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create monitor ticks metric: %w", err))
	}

	metrics = cacheMetricsCollection{
		acquireCount:  acquireCount,
		loadDuration:  loadDuration,
		loadFailures:  loadFailures,
		evictionCount: evictionCount,
		monitorTicks:  monitorTicks,
	}
}
