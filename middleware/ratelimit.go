package middleware

import (
	"context"

	"golang.org/x/time/rate"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// RateLimit returns middleware that throttles record throughput using a
// shared token bucket. Useful on source and sink steps talking to external
// APIs with request quotas. Wait blocks until a token is available or the
// context is cancelled; cancellation surfaces as a record failure.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, _ string, _ *pipeline.Record, next Handler) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return next(ctx)
	}
}

// RateLimitPerSecond is a convenience wrapper over RateLimit that allows n
// records per second with a burst of n.
func RateLimitPerSecond(n int) Middleware {
	return RateLimit(rate.NewLimiter(rate.Limit(n), n))
}
