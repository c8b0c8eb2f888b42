// Package api implements the gpioremote HTTP server.
//
// This package provides:
//   - The audit log API at /log (insert and newest-first listing)
//   - GET /health and GET /status for the presented connection status
//   - A WebSocket hub streaming status, dashboard, GPIO and rule-list events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// Log API errors are JSON objects with a single "error" string. Callers treat
// any non-2xx response as a failure without parsing the body.
//
// The server degrades by omission: routes whose dependency is missing from
// Deps are not mounted.
package api
