// Package metrics holds the engine's counters and latency histograms together
// with the exported metric names used by the Prometheus and OpenTelemetry
// exporters.
package metrics
