// Package prometheus renders hackauth metrics in Prometheus text exposition
// format. Counters are named hackauth_*_total; latency histograms end in
// _seconds. Nothing is registered globally: callers mount [Exporter.Handler].
package prometheus
