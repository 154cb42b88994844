// Package bridge exposes one drone session over a local HTTP API so a
// dashboard can connect, send commands, and read recent traffic.
//
// The bridge owns at most one live session. A disconnect is terminal for
// that session; the next POST /connect builds a fresh one from the factory.
package bridge
