// Package wsconn implements session.Transport over a gorilla WebSocket.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCloseWait        = 2 * time.Second
	defaultReadLimit        = 1 << 20
)

// Dialer opens ws:// and wss:// transports.
type Dialer struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	// CloseWait bounds how long a local Close waits for the peer's close frame.
	CloseWait time.Duration
	ReadLimit int64
}

func NewDialer() *Dialer {
	return &Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
		CloseWait:        defaultCloseWait,
		ReadLimit:        defaultReadLimit,
	}
}

// Dial starts the handshake in the background and returns immediately.
func (d *Dialer) Dial(ctx context.Context, address string, cfg session.Config, h session.TransportHandlers) (session.Transport, error) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrUnsupportedAddress, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "ws" && scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", session.ErrUnsupportedAddress, u.Scheme)
	}

	wsd := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.handshakeTimeout(),
	}
	if scheme == "wss" {
		tlsCfg, err := cfg.ClientTLSConfig(u.Hostname())
		if err != nil {
			return nil, err
		}
		wsd.TLSClientConfig = tlsCfg
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		handlers:     h,
		state:        session.TransportConnecting,
		cancel:       cancel,
		writeTimeout: cfg.WriteTimeout,
		closeWait:    d.closeWait(),
	}
	go c.run(ctx, wsd, u.String(), d.header(), d.readLimit())
	return c, nil
}

func (d *Dialer) header() http.Header {
	if d == nil {
		return nil
	}
	return d.Header.Clone()
}

func (d *Dialer) handshakeTimeout() time.Duration {
	if d == nil || d.HandshakeTimeout <= 0 {
		return defaultHandshakeTimeout
	}
	return d.HandshakeTimeout
}

func (d *Dialer) closeWait() time.Duration {
	if d == nil || d.CloseWait <= 0 {
		return defaultCloseWait
	}
	return d.CloseWait
}

func (d *Dialer) readLimit() int64 {
	if d == nil || d.ReadLimit <= 0 {
		return defaultReadLimit
	}
	return d.ReadLimit
}

// Conn is one WebSocket connection. Writes are serialized; events are
// delivered from the read goroutine.
type Conn struct {
	mu       sync.Mutex
	handlers session.TransportHandlers
	state    session.TransportState
	conn     *websocket.Conn
	cancel   context.CancelFunc

	localClose  bool
	closeCode   int
	closeReason string

	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeWait    time.Duration
}

func (c *Conn) run(ctx context.Context, wsd *websocket.Dialer, address string, header http.Header, readLimit int64) {
	defer c.cancel()

	conn, _, err := wsd.DialContext(ctx, address, header)
	if err != nil {
		c.finish(err)
		return
	}

	c.mu.Lock()
	if c.state != session.TransportConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(nil)
		return
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	c.state = session.TransportOpen
	onOpen := c.handlers.OnOpen
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logs.Debugf("wsconn open address=%s", address)
	if onOpen != nil {
		onOpen()
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			c.finish(err)
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		c.mu.Lock()
		onMessage := c.handlers.OnMessage
		c.mu.Unlock()
		if onMessage != nil {
			onMessage(data)
		}
	}
}

// finish moves the connection to Closed and reports exactly one close.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	if c.state == session.TransportClosed {
		c.mu.Unlock()
		return
	}
	code, reason := session.CloseAbnormalClosure, ""
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		code, reason = ce.Code, ce.Text
	case c.localClose:
		code, reason = c.closeCode, c.closeReason
	case err != nil:
		reason = err.Error()
	}
	reportErr := err != nil && ce == nil && !c.localClose
	c.state = session.TransportClosed
	c.conn = nil
	c.localClose = false
	h := c.handlers
	c.mu.Unlock()

	if reportErr {
		logs.Debugf("wsconn error err=%v", err)
		if h.OnError != nil {
			h.OnError(err)
		}
	}
	logs.Debugf("wsconn closed code=%d reason=%q", code, reason)
	if h.OnClose != nil {
		h.OnClose(code, reason)
	}
}

func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == session.TransportOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return session.ErrTransportNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close starts the closing handshake. The final OnClose arrives from the
// read goroutine once the peer answers or CloseWait elapses.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	switch c.state {
	case session.TransportClosing, session.TransportClosed:
		c.mu.Unlock()
		return nil
	case session.TransportConnecting:
		c.state = session.TransportClosing
		c.localClose = true
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		c.cancel()
		return nil
	}
	c.state = session.TransportClosing
	c.localClose = true
	c.closeCode, c.closeReason = code, reason
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.closeWait),
	)
	c.writeMu.Unlock()
	_ = conn.SetReadDeadline(time.Now().Add(c.closeWait))
	if err != nil {
		_ = conn.Close()
	}
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
