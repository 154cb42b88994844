// Package sioconn carries session frames over Socket.IO for ground stations
// that expose a Socket.IO endpoint instead of a raw WebSocket.
//
// Frames travel as the payload of the "message" event. Socket.IO's own
// reconnection is disabled so the session stays the only retry policy.
package sioconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/protocol/session"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

const (
	DefaultPath  = "/socket.io/"
	MessageEvent = "message"
)

// Dialer opens sio:// and sios:// transports.
type Dialer struct {
	Path string
	Auth map[string]any
}

func NewDialer() *Dialer {
	return &Dialer{Path: DefaultPath}
}

// HTTPAddress maps sio:// to http:// and sios:// to https://.
func HTTPAddress(address string) (string, bool, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", session.ErrUnsupportedAddress, err)
	}
	secure := false
	switch strings.ToLower(u.Scheme) {
	case "sio", "http":
		u.Scheme = "http"
	case "sios", "https":
		u.Scheme = "https"
		secure = true
	default:
		return "", false, fmt.Errorf("%w: scheme %q", session.ErrUnsupportedAddress, u.Scheme)
	}
	return u.String(), secure, nil
}

func (d *Dialer) Dial(ctx context.Context, address string, cfg session.Config, h session.TransportHandlers) (session.Transport, error) {
	target, secure, err := HTTPAddress(address)
	if err != nil {
		return nil, err
	}

	opts := socket.DefaultOptions()
	opts.SetPath(d.path())
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetReconnection(false)
	opts.SetAutoConnect(false)
	opts.SetTimeout(cfg.ConnectTimeout)
	if len(d.Auth) > 0 {
		opts.SetAuth(d.Auth)
	}
	if secure {
		u, _ := url.Parse(target)
		tlsCfg, err := cfg.ClientTLSConfig(u.Hostname())
		if err != nil {
			return nil, err
		}
		opts.SetTLSClientConfig(tlsCfg)
	}

	c := &Conn{handlers: h, state: session.TransportConnecting}
	sock, err := socket.Connect(target, opts)
	if err != nil {
		return nil, fmt.Errorf("sioconn: connect %s: %w", target, err)
	}
	c.sock = sock

	sock.On(types.EventName("connect"), func(...any) { c.onConnect() })
	sock.On(types.EventName("connect_error"), func(args ...any) { c.onConnectError(args) })
	sock.On(types.EventName("disconnect"), func(args ...any) { c.onDisconnect(args) })
	sock.On(types.EventName(MessageEvent), func(args ...any) { c.onMessage(args) })
	sock.Connect()

	context.AfterFunc(ctx, func() { _ = c.Close(session.CloseGoingAway, "context cancelled") })
	logs.Debugf("sioconn dialing address=%s path=%s", target, d.path())
	return c, nil
}

func (d *Dialer) path() string {
	if d == nil || strings.TrimSpace(d.Path) == "" {
		return DefaultPath
	}
	return d.Path
}

// Conn adapts a Socket.IO client socket to session.Transport.
type Conn struct {
	mu       sync.Mutex
	handlers session.TransportHandlers
	state    session.TransportState
	sock     *socket.Socket

	closeCode   int
	closeReason string
}

func (c *Conn) onConnect() {
	c.mu.Lock()
	if c.state != session.TransportConnecting {
		c.mu.Unlock()
		return
	}
	c.state = session.TransportOpen
	fn := c.handlers.OnOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Conn) onConnectError(args []any) {
	err := fmt.Errorf("sioconn: connect error")
	if len(args) > 0 {
		if e, ok := args[0].(error); ok {
			err = fmt.Errorf("sioconn: connect error: %w", e)
		} else {
			err = fmt.Errorf("sioconn: connect error: %v", args[0])
		}
	}
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()
	if h.OnError != nil {
		h.OnError(err)
	}
	c.finish(session.CloseAbnormalClosure, err.Error())
}

func (c *Conn) onDisconnect(args []any) {
	reason := ""
	if len(args) > 0 {
		if r, ok := args[0].(string); ok {
			reason = r
		}
	}
	code := session.CloseAbnormalClosure
	switch reason {
	case "io server disconnect":
		code = session.CloseGoingAway
	case "io client disconnect":
		code = session.CloseNormalClosure
	}
	c.finish(code, reason)
}

func (c *Conn) onMessage(args []any) {
	if len(args) == 0 {
		return
	}
	var data []byte
	switch v := args[0].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			logs.Warnf("sioconn: drop unencodable message err=%v", err)
			return
		}
		data = raw
	}
	c.mu.Lock()
	fn := c.handlers.OnMessage
	c.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// finish reports a single OnClose. A locally requested close code wins
// over the reason Socket.IO reports.
func (c *Conn) finish(code int, reason string) {
	c.mu.Lock()
	if c.state == session.TransportClosed {
		c.mu.Unlock()
		return
	}
	if c.closeCode != 0 {
		code, reason = c.closeCode, c.closeReason
	}
	c.state = session.TransportClosed
	fn := c.handlers.OnClose
	c.mu.Unlock()
	logs.Debugf("sioconn closed code=%d reason=%q", code, reason)
	if fn != nil {
		fn(code, reason)
	}
}

// Send emits payload as the "message" event. JSON objects are sent decoded
// so the peer receives structured data.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	sock := c.sock
	open := c.state == session.TransportOpen
	c.mu.Unlock()
	if !open || sock == nil {
		return session.ErrTransportNotOpen
	}
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		body = string(payload)
	}
	sock.Emit(MessageEvent, body)
	return nil
}

func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.state == session.TransportClosing || c.state == session.TransportClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = session.TransportClosing
	c.closeCode, c.closeReason = code, reason
	sock := c.sock
	c.mu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}
	// Disconnecting a socket that never connected emits no event.
	c.finish(code, reason)
	return nil
}

func (c *Conn) State() session.TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Detach() {
	c.mu.Lock()
	c.handlers = session.TransportHandlers{}
	c.mu.Unlock()
}
