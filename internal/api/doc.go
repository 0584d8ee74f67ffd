// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/trackers, /v1/trackers/{tracker_id} and
//     /v1/trackers/{tracker_id}/contributors for persisted tracker progress.
//   - POST /v1/simulations to launch a simulated aggregate job.
package api
