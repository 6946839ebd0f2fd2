// Package telemetry sets up OpenTelemetry tracing and metrics for denguex.
//
// Telemetry is off by default. When enabled, spans and metrics are exported
// over OTLP (gRPC or HTTP) and the global providers are replaced, so the
// tracers and meters created in the chatbot, embeddings and vectorstore
// packages start exporting. Exporter setup failures degrade to no-op
// instrumentation and never stop the service.
package telemetry
