// Package observability provides production observers for the herald
// engine: a Prometheus observer exposing execution counters and latency
// histograms, and OpenTelemetry tracer setup for exporting the engine's
// execution spans over OTLP/HTTP.
//
// Both are optional. The engine emits spans through the global tracer
// provider, so calling InitTracer before constructing a client is enough
// to export them.
package observability
