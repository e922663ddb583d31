// Package http exposes the gate over HTTP.
//
// The server carries three routes:
//
//	POST /v1/access  - verify one data access attempt under an agreement
//	GET  /healthz    - component health as JSON, 503 when unhealthy
//	GET  /metrics    - Prometheus metrics
//
// The access route answers 200 with the verdict for every decided request,
// allowed or not. An agreement that cannot be used yields 403, a malformed
// body 400, and a storage failure 500.
//
// # Middleware Chain
//
// Requests pass through, outermost first:
//
//  1. MetricsMiddleware - request count and duration per route
//  2. RequestIDMiddleware - X-Request-ID propagation and logger enrichment
//  3. Handler
package http
