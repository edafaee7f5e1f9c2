package registry

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/modulekit/activation"
)

// Option configures a Registry.
type Option func(*config)

type config struct {
	store  activation.Store
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

// WithStore sets the activation store. Without it the registry keeps state in
// an activation.MemoryStore and nothing survives the process.
func WithStore(store activation.Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer. Defaults to the global provider's
// tracer, which is a no-op until one is installed.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for transition metrics. Defaults to
// the global provider's meter.
func WithMeter(meter metric.Meter) Option {
	return func(c *config) {
		c.meter = meter
	}
}
