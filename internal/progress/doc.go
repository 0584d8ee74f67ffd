// Package progress turns aggregate tracker activity into a stream of events.
// Display adapts one tracker's display and observer callbacks into Events; the
// Hub batches them on a background goroutine and fans them out to pluggable
// sinks such as Prometheus collectors, a persistent repository, or Pub/Sub.
package progress
