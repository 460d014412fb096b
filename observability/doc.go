// Package observability provides an extension that turns pipeline
// lifecycle events into OpenTelemetry metrics.
package observability
