// Package failure provides the non-fatal failure collector: a
// concurrent-safe, append-only sink for item-level errors, the
// pipeline's equivalent of a dead letter queue.
//
// A record that errors inside a Filter or Sink is recorded here,
// keyed by its stable identifier and the step that failed it, and the
// stream moves on. At run end the collector materializes a durable
// JSON report so no record's fate is ever silently discarded: either
// it reached a sink, or it is in the report.
package failure
