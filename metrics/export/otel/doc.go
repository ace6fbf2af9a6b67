// Package otel publishes engine metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter. Each
// histogram becomes a "<name>_bucket" gauge with an "le" attribute per upper
// bound, plus "<name>_count". A single callback reads Engine.MetricsSnapshot
// on each collection. The caller owns the MeterProvider.
package otel
