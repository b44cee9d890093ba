// Package otel binds hackauth metrics to an OpenTelemetry meter supplied by
// the caller. Counters become Int64ObservableCounter instruments and each
// histogram bucket becomes an Int64ObservableGauge.
package otel
