package session

import "errors"

var (
	ErrAddressRequired     = errors.New("session: address required")
	ErrDialerRequired      = errors.New("session: dialer required")
	ErrNotConnected        = errors.New("session: not connected")
	ErrInvalidCommand      = errors.New("session: invalid command")
	ErrInvalidCoordinates  = errors.New("session: invalid coordinates")
	ErrAltitudeOutOfRange  = errors.New("session: altitude out of range")
	ErrTooFewWaypoints     = errors.New("session: too few waypoints")
	ErrConnectTimeout      = errors.New("session: connect timeout")
	ErrConnectionClosed    = errors.New("session: connection closed before open")
	ErrDisconnected        = errors.New("session: disconnected")
	ErrMalformedFrame      = errors.New("session: malformed inbound frame")
	ErrTransportNotOpen    = errors.New("session: transport not open")
	ErrUnsupportedAddress  = errors.New("session: unsupported address")
	ErrReconnectsExhausted = errors.New("session: reconnect attempts exhausted")
)
