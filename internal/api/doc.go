// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/imports for import submission.
//   - GET /v1/operations and /v1/operations/{id}/stats for progress
//     reporting via the OperationRepository interface.
package api
