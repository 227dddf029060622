// Package otel binds authsync engine state and counters to OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers a phase gauge carrying a "phase" attribute, one
// instrument per engine state value, one Int64ObservableCounter per counter,
// and bucket, count and sum instruments for the resolve latency histogram.
// Buckets carry an "le" attribute. A single callback reads
// [authsync.Engine.State] and [authsync.Engine.MetricsSnapshot] on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
