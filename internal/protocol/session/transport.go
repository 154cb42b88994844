package session

import "context"

// TransportState mirrors the ready states of a message transport.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosing
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosing:
		return "closing"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes used on the wire.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseAbnormalClosure = 1006
)

// TransportHandlers receives transport events. Any field may be nil.
//
// A transport reports a failed open as OnError followed by OnClose, and
// reports every terminal condition with exactly one OnClose.
type TransportHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

// Transport is one bidirectional text-frame connection.
type Transport interface {
	Send(payload []byte) error
	Close(code int, reason string) error
	State() TransportState
	// Detach drops all handlers; no event is delivered after it returns.
	Detach()
}

// Dialer opens transports. Dial must return without invoking any handler;
// events are delivered later from the transport's own goroutines (or, for
// fakes, from the test). ctx is cancelled when the session tears the
// transport down.
type Dialer interface {
	Dial(ctx context.Context, address string, cfg Config, h TransportHandlers) (Transport, error)
}

// DialerFunc adapts a function into a Dialer.
type DialerFunc func(ctx context.Context, address string, cfg Config, h TransportHandlers) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, address string, cfg Config, h TransportHandlers) (Transport, error) {
	return f(ctx, address, cfg, h)
}
