// Package instrumentation provides OpenTelemetry metrics and tracing for the
// mail session gateway.
//
// The package is built around a single Instrumentation value created at boot.
// When instrumentation is disabled it hands out no-op providers, so callers
// never need nil checks around recording code paths. When enabled, metrics
// are collected through a Prometheus reader and exposed via the handler
// returned by PrometheusHandler.
//
// Scopes follow the gateway's layers: "http", "flow", "storage", "security".
package instrumentation
