package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Recover returns middleware that recovers from panics in unit code.
// Panics are converted to errors and logged with a stack trace, so one bad
// record cannot take down the whole run.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, stepID string, rec *pipeline.Record, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("unit panicked on record",
					slog.String("step", stepID),
					slog.String("record_id", rec.ID()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in step %s: %v", stepID, r)
			}
		}()
		return next(ctx)
	}
}
