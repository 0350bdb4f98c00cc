// Package server provides Watchboard's local mirror: an HTTP surface over the
// stores.
//
// This package is internal to Watchboard and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - Snapshots: JSON at "/api/checks" and "/api/logs"
//   - Server-Sent Events: A change stream at "/api/sse"
//   - Actions: endpoints that trigger action creators
//   - Metrics: Prometheus exposition at "/metrics"
//
// Action endpoints answer 202 Accepted once the intent is queued. Whether the
// request to the service succeeded shows up in the next snapshot, either as
// changed data or as the store's failure outcome.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
