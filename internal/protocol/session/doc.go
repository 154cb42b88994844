// Package session owns the drone-server client session.
//
// Ownership boundary:
// - connection lifecycle (idle -> connecting -> open -> closed)
// - heartbeat while open
// - bounded reconnects with per-attempt backoff
// - outbound frame encoding and typed command builders
// - inbound frame parsing and dispatch to one message callback
//
// The session never interprets inbound messages beyond JSON validity; telemetry,
// status, and command responses are the caller's to classify. The only message
// the session originates itself is the reconnect_attempt notification.
//
// Every timer (connect timeout, heartbeat, reconnect) is held as a handle in
// session state and re-validated when it fires.
package session
