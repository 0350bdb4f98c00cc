// Package push ingests unsolicited notifications from the service.
//
// The service sends JSON envelopes of the form
//
//	{"type": "new_log", "data": {...}}
//	{"type": "updated_check", "data": {...}}
//
// over a [Source]: the service's websocket endpoint ([WebSocketSource]) or a
// NATS subject the service publishes to ([NATSSource]). An [Ingester] decodes
// each envelope and posts a PushLog or PushCheck intent. Unknown types are
// ignored; malformed messages are logged and dropped.
package push
