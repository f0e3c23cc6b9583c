// Package observability provides an OpenTelemetry metrics extension for
// strata. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for record writes, operation failures and
// per-tenant collection provisioning.
//
// For per-operation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
