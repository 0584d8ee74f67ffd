// Package sinks implements concrete tracker event consumers: Prometheus
// metrics, repository-backed storage, Pub/Sub fan-out and structured logging.
// Each sink satisfies progress.Sink and tolerates repeated Consume calls.
package sinks
