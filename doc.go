// Package watchboard keeps a local, consistent copy of a change-detection
// service's checks and logs.
//
// The service watches web pages: each check pairs a URL with a CSS selector
// and a cron schedule, and the service records when the selected content
// changes. Watchboard mirrors those checks and the service's log into two
// in-process stores, applies user actions against the service, and merges
// push notifications the service sends on its own.
//
// # Quick Start
//
//	c, _ := watchboard.New(
//	    watchboard.WithServiceURL("http://localhost:8080"),
//	    watchboard.WithPushWebSocket("ws://localhost:8080/ws"),
//	    watchboard.WithMirror(9090),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	c.Start(ctx) // blocks until context is cancelled
//
// # State model
//
// Every change goes through one path: an action (or a push message) posts an
// intent, a single loop goroutine dispatches it to the stores, and the stores
// notify subscribers after they change. Requests to the service run on a
// bounded worker pool and come back as further intents, so a snapshot never
// shows a half-applied update. Completions that arrive out of order are
// fenced per check; a failed request leaves a [Failure] in the snapshot until
// [Client.DismissFailure] is called.
//
// # Architecture
//
// Watchboard consists of several internal packages (under internal/):
//
//   - internal/dispatcher: Synchronous intent router with a re-entrancy guard
//   - internal/store: Check and log stores with change subscriptions
//   - internal/loop: The dispatch goroutine and request worker pool
//   - internal/actions: Input validation and intent construction
//   - internal/push: Push message decoding over WebSocket or NATS
//   - internal/api: REST client for the service
//   - internal/server: Local mirror with JSON snapshots and Server-Sent Events
//   - internal/metrics: Prometheus collectors
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package watchboard
