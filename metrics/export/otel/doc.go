// Package otel exposes stepAuth engine metrics through OpenTelemetry
// observable instruments. The caller owns the MeterProvider; the exporter
// only registers instruments and one callback on the supplied Meter.
package otel
