// Package observability provides structured JSON logging, Prometheus
// metrics, OpenTelemetry wiring, dependency health checks and graceful
// shutdown for the grantor service.
//
// The logger rides on stdlib slog with a JSON handler; request ids and
// operation ids travel in the context and are stamped onto every log line
// via FromContext. Metrics cover the workflow engine (operations, phase
// durations, rollback outcomes, conflicts) alongside HTTP and storage
// instrumentation.
package observability
