// Package api hosts the HTTP server, middleware, and REST handlers that the
// chat front end and operators use. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST, GET /v1/users/{owner}/rules and DELETE
//     /v1/users/{owner}/rules/{rule_id} for managing alert rules.
//   - POST /v1/passes to run a monitoring pass now, GET /v1/passes/last for
//     the scheduler state and the last pass report.
package api
