// Package telemetry bootstraps the OpenTelemetry tracer provider and records
// validation metrics and span events. Offending request payloads never reach
// telemetry attributes; only categories, scopes, and field names are exported.
package telemetry
