// Package observability provides OpenTelemetry metrics for streamkit.
//
// InitMeter wires an OTLP HTTP exporter into the global meter provider;
// StreamMetrics holds the instrument set the SSE hub feeds (active
// connections, sent/retried/dropped frames, evictions). Without
// InitMeter the global provider is a no-op, so instrumented code works
// unconfigured and in tests.
package observability
