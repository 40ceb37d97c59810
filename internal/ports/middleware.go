package ports

import (
	"net/http"

	"github.com/Amund211/assetcache/internal/ratelimiting"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func NewRateLimitMiddleware(rateLimiter ratelimiting.RequestRateLimiter, onLimitExceeded http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !rateLimiter.Consume(r) {
				onLimitExceeded(w, r)
				return
			}

			next(w, r)
		}
	}
}

// NewClientRateLimitMiddleware limits each client by address and by the client id it sends
//
// The returned function stops the expiry loops of the limiters.
func NewClientRateLimitMiddleware(refillPerSecond ratelimiting.RefillPerSecond, burstSize ratelimiting.BurstSize) (func(http.HandlerFunc) http.HandlerFunc, func()) {
	ipLimiter, stopIP := ratelimiting.NewTokenBucketRateLimiter(refillPerSecond, burstSize)
	clientLimiter, stopClient := ratelimiting.NewTokenBucketRateLimiter(refillPerSecond, burstSize)

	onLimitExceeded := func(limiter string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			metrics.rateLimited.Add(r.Context(), 1, metric.WithAttributes(attribute.String("limiter", limiter)))
			writeErrorResponse(w, r, "", "rate limit exceeded", http.StatusTooManyRequests)
		}
	}

	middleware := ComposeMiddlewares(
		NewRateLimitMiddleware(
			ratelimiting.NewRequestBasedRateLimiter(ipLimiter, ratelimiting.IPKeyFunc),
			onLimitExceeded("ip"),
		),
		NewRateLimitMiddleware(
			// NOTE: Rate limiting based on user controlled value
			ratelimiting.NewRequestBasedRateLimiter(clientLimiter, ratelimiting.ClientIDKeyFunc),
			onLimitExceeded("client"),
		),
	)

	return middleware, func() {
		stopIP()
		stopClient()
	}
}

func ComposeMiddlewares(middlewares ...func(http.HandlerFunc) http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	if len(middlewares) == 1 {
		return middlewares[0]
	}
	first := middlewares[0]
	rest := ComposeMiddlewares(middlewares[1:]...)
	return func(h http.HandlerFunc) http.HandlerFunc {
		return first(rest(h))
	}
}
