// Package middleware provides composable middleware for per-record unit
// execution.
//
// A [Middleware] wraps the processing of one record by one step. Middleware
// are composed into a chain using [Chain] and applied by the streaming
// engine around every filter and sink invocation. They are applied
// right-to-left: the first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs record ID, step, duration, and outcome per record
//   - [Recover] — catches panics in unit code and converts them to errors
//   - [Timeout] — cancels the record context after a configured duration
//   - [Tracing] — wraps processing in an OpenTelemetry span
//   - [Metrics] — records per-record duration and outcome counters
//   - [RateLimit] — throttles record throughput for a step
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, stepID string, rec *pipeline.Record, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., rate limiting with a cancelled context).
package middleware
