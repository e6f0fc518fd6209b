package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.RunStarted      = (*MetricsExtension)(nil)
	_ ext.StepCompleted   = (*MetricsExtension)(nil)
	_ ext.StepFailed      = (*MetricsExtension)(nil)
	_ ext.RecordFailed    = (*MetricsExtension)(nil)
	_ ext.CheckpointSaved = (*MetricsExtension)(nil)
	_ ext.RunCompleted    = (*MetricsExtension)(nil)
	_ ext.RunFailed       = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope name for run-level metrics.
const meterName = "github.com/DecentralizedGeo/stac-manager-sub002/observability"

// MetricsExtension records run lifecycle metrics. Register it as an
// engine extension to automatically track run throughput, per-step
// record traffic, failure rates, and checkpoint saves. With no global
// MeterProvider configured the instruments are noops.
type MetricsExtension struct {
	runsStarted     metric.Int64Counter
	runsCompleted   metric.Int64Counter
	runsFailed      metric.Int64Counter
	runDuration     metric.Float64Histogram
	stepRecords     metric.Int64Counter
	recordsFailed   metric.Int64Counter
	checkpointSaves metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.runsStarted, _ = meter.Int64Counter("pipeline.runs.started",
		metric.WithDescription("Total workflow runs started"),
		metric.WithUnit("{run}"))
	m.runsCompleted, _ = meter.Int64Counter("pipeline.runs.completed",
		metric.WithDescription("Total workflow runs completed"),
		metric.WithUnit("{run}"))
	m.runsFailed, _ = meter.Int64Counter("pipeline.runs.failed",
		metric.WithDescription("Total workflow runs aborted on a fatal error"),
		metric.WithUnit("{run}"))
	m.runDuration, _ = meter.Float64Histogram("pipeline.run.duration",
		metric.WithDescription("Wall-clock duration of workflow runs in seconds"),
		metric.WithUnit("s"))
	m.stepRecords, _ = meter.Int64Counter("pipeline.step.records",
		metric.WithDescription("Records emitted by completed steps"),
		metric.WithUnit("{record}"))
	m.recordsFailed, _ = meter.Int64Counter("pipeline.records.failed",
		metric.WithDescription("Records routed to the failure collector"),
		metric.WithUnit("{record}"))
	m.checkpointSaves, _ = meter.Int64Counter("pipeline.checkpoint.saves",
		metric.WithDescription("Durable checkpoint writes"),
		metric.WithUnit("{save}"))

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, run ext.RunInfo) error {
	m.runsStarted.Add(ctx, 1, workflowAttr(run))
	return nil
}

// OnStepCompleted implements ext.StepCompleted.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, run ext.RunInfo, s *pipeline.StepSummary) error {
	m.stepRecords.Add(ctx, s.Out, metric.WithAttributes(
		attribute.String("workflow", run.Workflow),
		attribute.String("step", s.StepID),
	))
	return nil
}

// OnStepFailed implements ext.StepFailed.
func (m *MetricsExtension) OnStepFailed(context.Context, ext.RunInfo, string, error) error {
	return nil
}

// OnRecordFailed implements ext.RecordFailed.
func (m *MetricsExtension) OnRecordFailed(ctx context.Context, run ext.RunInfo, stepID, _, _ string) error {
	m.recordsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", run.Workflow),
		attribute.String("step", stepID),
	))
	return nil
}

// OnCheckpointSaved implements ext.CheckpointSaved.
func (m *MetricsExtension) OnCheckpointSaved(ctx context.Context, run ext.RunInfo, stepID string, _ int) error {
	m.checkpointSaves.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", run.Workflow),
		attribute.String("step", stepID),
	))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, run ext.RunInfo, result *pipeline.Result, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("workflow", run.Workflow),
		attribute.String("status", string(result.Status)),
	)
	m.runsCompleted.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, run ext.RunInfo, _ error) error {
	m.runsFailed.Add(ctx, 1, workflowAttr(run))
	return nil
}

func workflowAttr(run ext.RunInfo) metric.AddOption {
	return metric.WithAttributes(attribute.String("workflow", run.Workflow))
}
