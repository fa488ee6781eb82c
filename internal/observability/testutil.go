package observability

import (
	"io"
	"log/slog"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewForTesting builds a TraceManager/MetricsManager pair backed by
// in-memory, exporter-less OpenTelemetry providers and a discarding logger.
// Every package's tests construct their dependencies this way rather than
// mocking TraceManager/MetricsManager: those types are threaded through the
// mesh as plain constructor arguments (never package-level singletons), so
// the real types are just as cheap to build as a fake would be.
func NewForTesting(serviceName string) (*slog.Logger, *TraceManager, *MetricsManager) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trace := NewTraceManager(serviceName)
	meter := sdkmetric.NewMeterProvider().Meter(serviceName)
	metrics, err := NewMetricsManager(meter)
	if err != nil {
		panic(err) // instrument registration only fails on programmer error
	}
	return logger, trace, metrics
}
