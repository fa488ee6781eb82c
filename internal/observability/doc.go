// Package observability provides the tracing, metrics, structured logging
// and health check infrastructure shared by every component of the mesh.
//
// # Overview
//
//   - Distributed tracing (OpenTelemetry, exported over OTLP/gRPC)
//   - Metrics collection (Prometheus, scraped over HTTP)
//   - Structured logging (log/slog), trace-correlated
//   - Health check and readiness endpoints
//
// This package is the foundation the broker, registry, planner, coordinator
// and orchestrator all build on; none of them stand up their own tracer or
// meter.
//
// # Quick Start
//
//	cfg := observability.DefaultConfig("meshhub-orchestrator")
//	obs, err := observability.NewObservability(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
//	logger := obs.Logger
//	tracer := obs.Tracer
//	meter := obs.Meter
//
// This sets up an OTLP trace exporter, a Prometheus metrics exporter, a
// trace-correlated structured logger, and resource attributes (service
// name, version, environment) on every span and metric emitted.
package observability
