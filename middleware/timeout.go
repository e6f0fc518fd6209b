package middleware

import (
	"context"
	"time"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Timeout returns middleware that enforces a per-record processing deadline.
// When the deadline is exceeded the context is cancelled and the unit should
// return context.DeadlineExceeded, which surfaces as a record failure.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ string, _ *pipeline.Record, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
