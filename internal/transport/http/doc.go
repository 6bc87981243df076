// Package http exposes the guarded host's HTTP surface: the guard status
// endpoint, health probes and the Prometheus scrape endpoint.
//
// Handlers stay thin. They read a snapshot from the guard and render it with
// go-chi/render; failures go through the shared errors.ErrorHandler so every
// error body is an RFC 7807 problem document.
//
// # Routes
//
//	GET /api/guard/status   guard state, identity and counters
//	GET /health             liveness
//	GET /health/live        liveness
//	GET /health/ready       200 while the guard is monitoring, 503 otherwise
//	GET /metrics            Prometheus exposition
package http
