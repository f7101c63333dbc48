// Package observability provides an OpenTelemetry-based metrics
// extension for ticketq. The MetricsExtension implements lifecycle
// hooks to record system-wide counters for job enqueue, completion,
// retry, dead-letter, rule match, and schedule firing events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
