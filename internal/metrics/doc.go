// Package metrics exports ingestion counters in Prometheus format.
//
// Metrics satisfies engine.Recorder and mirrors session balances through
// ObserveSession. Each instance owns a private registry so tests and the
// daemon never collide on the global one.
package metrics
