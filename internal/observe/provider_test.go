package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "test_echo", "ok", 0.05)
	m.RecordToolCall(ctx, "test_echo", "error", 0.1)

	rm := collect(t, reader)

	counter := findMetric(rm, "toolhost.tool.calls")
	if counter == nil {
		t.Fatal("toolhost.tool.calls not found")
	}
	sum, ok := counter.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("toolhost.tool.calls is not a sum")
	}
	var okCount int64
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "outcome" && kv.Value.AsString() == "ok" {
				okCount = dp.Value
			}
		}
	}
	if okCount != 1 {
		t.Errorf("ok count = %d, want 1", okCount)
	}

	hist := findMetric(rm, "toolhost.tool.call.duration")
	if hist == nil {
		t.Fatal("toolhost.tool.call.duration not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("toolhost.tool.call.duration is not a histogram")
	}
	var total uint64
	for _, dp := range h.DataPoints {
		total += dp.Count
	}
	if total != 2 {
		t.Errorf("histogram sample count = %d, want 2", total)
	}
}

func TestRecordListingError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordListingError(ctx, "/tools/broken")

	rm := collect(t, reader)
	met := findMetric(rm, "toolhost.registry.listing_errors")
	if met == nil {
		t.Fatal("toolhost.registry.listing_errors not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
		t.Errorf("listing error count = %v, want 1", sum.DataPoints)
	}
}

func TestRecordToolCall_NilMetrics_NeverCalled(t *testing.T) {
	// Documents the dispatcher-side contract: a nil *Metrics is never
	// dereferenced directly by callers, since dispatcher.recordOutcome
	// guards on the narrower mcp.Metrics interface instead. This test
	// exists to pin the instrument creation path, not the guard.
	var zero metric.MeterProvider = sdkmetric.NewMeterProvider()
	m, err := NewMetrics(zero)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m == nil {
		t.Fatal("NewMetrics returned nil Metrics")
	}
}
