package registry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zero-day-ai/modulekit/registry"

// otelMetrics holds the metric instruments of one registry.
type otelMetrics struct {
	// transitions counts Enable/Disable calls by op and reason
	transitions metric.Int64Counter

	// enabled records how many modules are enabled after each commit
	enabled metric.Int64Gauge
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	m.transitions, err = meter.Int64Counter(
		"modulekit.transitions",
		metric.WithDescription("Module enable/disable requests by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}

	m.enabled, err = meter.Int64Gauge(
		"modulekit.enabled_modules",
		metric.WithDescription("Number of currently enabled modules"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enabled gauge: %w", err)
	}

	return m, nil
}

// record finishes the span of a transition and updates metrics.
func (r *Registry) record(ctx context.Context, span trace.Span, res Result, enabledCount int) {
	span.SetAttributes(
		attribute.Bool("modulekit.ok", res.OK),
		attribute.String("modulekit.reason", string(res.Reason)),
		attribute.StringSlice("modulekit.changed", res.Changed),
	)
	if len(res.Related) > 0 {
		span.SetAttributes(attribute.StringSlice("modulekit.related", res.Related))
	}
	switch {
	case res.Err != nil:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	case !res.OK:
		span.SetStatus(codes.Error, res.Message())
	default:
		span.SetStatus(codes.Ok, "")
	}

	r.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", string(res.Op)),
		attribute.String("reason", string(res.Reason)),
		attribute.Bool("ok", res.OK),
	))
	if enabledCount >= 0 {
		r.metrics.enabled.Record(ctx, int64(enabledCount))
	}
}
