package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/DecentralizedGeo/stac-manager-sub002/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_RecordsDurationAndCount(t *testing.T) {
	reader, mp := setupTestMeter()
	mw := middleware.MetricsWithMeter(mp.Meter("test"))

	for range 3 {
		if err := mw(context.Background(), "load-sink", testRecord(), func(context.Context) error {
			return nil
		}); err != nil {
			t.Fatalf("middleware: %v", err)
		}
	}

	rm := collectMetrics(t, reader)

	processed := findMetric(rm, "pipeline.record.processed")
	if processed == nil {
		t.Fatal("pipeline.record.processed not recorded")
	}
	sum, ok := processed.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("processed data type = %T", processed.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("processed total = %d, want 3", total)
	}

	if findMetric(rm, "pipeline.record.duration") == nil {
		t.Error("pipeline.record.duration not recorded")
	}
}

func TestMetrics_TagsStatusByOutcome(t *testing.T) {
	reader, mp := setupTestMeter()
	mw := middleware.MetricsWithMeter(mp.Meter("test"))

	ctx := context.Background()
	if err := mw(ctx, "s", testRecord(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("ok case: %v", err)
	}
	sentinel := errors.New("boom")
	if err := mw(ctx, "s", testRecord(), func(context.Context) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("error case: %v", err)
	}

	rm := collectMetrics(t, reader)
	processed := findMetric(rm, "pipeline.record.processed")
	if processed == nil {
		t.Fatal("pipeline.record.processed not recorded")
	}
	sum := processed.Data.(metricdata.Sum[int64])

	byStatus := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		if status, ok := dp.Attributes.Value(attribute.Key("status")); ok {
			byStatus[status.AsString()] += dp.Value
		}
	}
	if byStatus["ok"] != 1 || byStatus["error"] != 1 {
		t.Errorf("by status = %v, want ok=1 error=1", byStatus)
	}
}
