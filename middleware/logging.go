package middleware

import (
	"context"
	"log/slog"
	"time"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Logging returns middleware that logs each record's processing outcome.
// Per-record success is logged at Debug to keep high-volume runs readable;
// failures are logged at Warn since they are also routed to the failure
// collector.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, stepID string, rec *pipeline.Record, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("record failed",
				slog.String("step", stepID),
				slog.String("record_id", rec.ID()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("record processed",
				slog.String("step", stepID),
				slog.String("record_id", rec.ID()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
