// Package api hosts the HTTP server of the progress service. Routes:
//   - GET /progress returns the current report (the pull endpoint).
//   - PUT /progress and POST /progress/hook accept updates from producers.
//   - GET /socket upgrades to the WebSocket push channel.
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
package api
