// Package otel binds goSession metrics to OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and a set of
// gauges per histogram bucket, all fed from [goSession.Client.MetricsSnapshot]
// on each collection cycle.
//
// # What this package must NOT do
//
//   - Install a global MeterProvider.
//   - Mutate client state.
package otel
