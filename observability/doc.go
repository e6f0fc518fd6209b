// Package observability provides a ready-made extension that records
// run-level lifecycle metrics through OpenTelemetry. Register it on the
// engine to track run starts, completions, failures, per-step record
// counts, and checkpoint saves without writing custom hooks.
package observability
