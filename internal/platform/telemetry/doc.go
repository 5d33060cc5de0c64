// Package telemetry sets up OpenTelemetry tracing and metrics.
// When telemetry is disabled every provider is a no-op.
package telemetry
