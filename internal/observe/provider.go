// Package observe wires the server's OpenTelemetry metrics and exposes
// them (plus a liveness probe) over an optional debug HTTP listener.
// Grounded on glyphoxa's internal/observe and internal/health packages,
// trimmed to the metrics this server actually has something to measure:
// there is no distributed tracing here, since a single stdio process
// talking to one child at a time has nothing to trace a span across.
package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// meterName is the instrumentation scope name for every instrument this
// package creates.
const meterName = "github.com/toolhost-mcp/toolhost"

// Metrics holds every OpenTelemetry instrument the dispatcher and
// registry builder record against. Safe for concurrent use.
type Metrics struct {
	// ToolCalls counts tools/call dispatches that invoked a child, by tool
	// name and outcome ("ok" or "error").
	ToolCalls metric.Int64Counter

	// ToolCallDuration tracks child-process execution latency for
	// tools/call invocations.
	ToolCallDuration metric.Float64Histogram

	// ListingErrors counts registry-build listing failures by provider
	// path.
	ListingErrors metric.Int64Counter
}

// durationBuckets covers typical child-process latencies: from
// near-instant echo tools up to the default call timeout.
var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics creates a fully initialized Metrics using mp. Returns an
// error if any instrument fails to register.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)

	toolCalls, err := m.Int64Counter("toolhost.tool.calls",
		metric.WithDescription("Total tools/call dispatches by tool name and outcome."),
	)
	if err != nil {
		return nil, err
	}

	duration, err := m.Float64Histogram("toolhost.tool.call.duration",
		metric.WithDescription("Latency of a tools/call child-process invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	listingErrors, err := m.Int64Counter("toolhost.registry.listing_errors",
		metric.WithDescription("Total provider `list` invocations rejected during registry build."),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ToolCalls:        toolCalls,
		ToolCallDuration: duration,
		ListingErrors:    listingErrors,
	}, nil
}

// RecordToolCall records one tools/call dispatch outcome and its
// child-process duration in seconds.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolCallDuration.Record(ctx, seconds, attrs)
}

// RecordListingError records one provider whose `list` output was
// rejected during registry build.
func (m *Metrics) RecordListingError(ctx context.Context, providerPath string) {
	m.ListingErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", providerPath)))
}

// Init installs a Prometheus-backed MeterProvider as the global OTel
// provider and returns the Metrics built against it, plus a shutdown
// function to call on server exit. serviceName/serviceVersion are
// attached as resource attributes so a scrape target distinguishes
// multiple toolhost instances.
func Init(serviceName, serviceVersion string) (*Metrics, func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("observe: building resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("observe: creating prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	metrics, err := NewMetrics(mp)
	if err != nil {
		return nil, nil, fmt.Errorf("observe: creating instruments: %w", err)
	}

	return metrics, mp.Shutdown, nil
}
