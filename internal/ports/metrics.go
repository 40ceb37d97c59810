package ports

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type portsMetricsCollection struct {
	requestCount     metric.Int64Counter
	requestDuration  metric.Float64Histogram
	inFlightRequests metric.Int64UpDownCounter
	rateLimited      metric.Int64Counter
}

var metrics portsMetricsCollection

func init() {
	const name = "assetcache/ports"
	meter := otel.Meter(name)

	requestCount, err := meter.Int64Counter(
		"ports/request_count",
		metric.WithDescription("Total number of requests received"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create request count metric: %w", err))
	}

	requestDuration, err := meter.Float64Histogram(
		"ports/request_duration_seconds",
		metric.WithDescription("Processing time for received requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create request duration metric: %w", err))
	}

	inFlightRequests, err := meter.Int64UpDownCounter(
		"ports/in_flight_requests",
		metric.WithDescription("Number of requests currently being handled"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create in flight requests metric: %w", err))
	}

	rateLimited, err := meter.Int64Counter(
		"ports/rate_limited_count",
		metric.WithDescription("Number of requests rejected by a rate limiter"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rate limited metric: %w", err))
	}

	metrics = portsMetricsCollection{
		requestCount:     requestCount,
		requestDuration:  requestDuration,
		inFlightRequests: inFlightRequests,
		rateLimited:      rateLimited,
	}
}

func buildMetricsMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			userAgent := r.UserAgent()
			if userAgent == "" {
				userAgent = "<missing>"
			}

			metrics.inFlightRequests.Add(ctx, 1)
			defer metrics.inFlightRequests.Add(ctx, -1)

			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next(recorder, r)

			attributes := []attribute.KeyValue{
				attribute.String("method", r.Method),
				// The route pattern, keys would make the cardinality unbounded
				attribute.String("route", r.Pattern),
				attribute.Int("status_code", recorder.statusCode),
				attribute.String("user_agent", userAgent),
			}

			attributesOption := metric.WithAttributes(attributes...)

			metrics.requestCount.Add(ctx, 1, attributesOption)
			metrics.requestDuration.Record(ctx, time.Since(start).Seconds(), attributesOption)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
