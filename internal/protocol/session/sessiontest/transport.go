package sessiontest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/danmuck/groundctl/internal/protocol/session"
)

var ErrFakeDialRefused = errors.New("sessiontest: dial refused")

// FakeDialer hands out FakeTransports and remembers every one of them.
type FakeDialer struct {
	mu         sync.Mutex
	transports []*FakeTransport
	dialErr    error
	dialed     chan *FakeTransport
}

var _ session.Dialer = (*FakeDialer)(nil)

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{dialed: make(chan *FakeTransport, 64)}
}

// FailDials makes subsequent Dial calls return err synchronously (nil to stop).
func (d *FakeDialer) FailDials(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

func (d *FakeDialer) Dial(ctx context.Context, address string, cfg session.Config, h session.TransportHandlers) (session.Transport, error) {
	d.mu.Lock()
	if d.dialErr != nil {
		err := d.dialErr
		d.mu.Unlock()
		return nil, err
	}
	t := &FakeTransport{address: address, handlers: h, state: session.TransportConnecting, ctx: ctx}
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	d.dialed <- t
	return t, nil
}

// Dialed returns a channel receiving each transport as it is dialed.
func (d *FakeDialer) Dialed() <-chan *FakeTransport { return d.dialed }

func (d *FakeDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *FakeDialer) Last() *FakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// LiveListeners counts transports that still have handlers attached.
func (d *FakeDialer) LiveListeners() int {
	d.mu.Lock()
	list := append([]*FakeTransport(nil), d.transports...)
	d.mu.Unlock()
	n := 0
	for _, t := range list {
		if t.Attached() {
			n++
		}
	}
	return n
}

// FakeTransport records writes and lets tests drive transport events.
type FakeTransport struct {
	mu        sync.Mutex
	address   string
	handlers  session.TransportHandlers
	detached  bool
	state     session.TransportState
	written   [][]byte
	closeCode int
	sendErr   error
	ctx       context.Context
}

var _ session.Transport = (*FakeTransport)(nil)

func (t *FakeTransport) Address() string { return t.address }

func (t *FakeTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.state != session.TransportOpen {
		return session.ErrTransportNotOpen
	}
	t.written = append(t.written, append([]byte(nil), payload...))
	return nil
}

func (t *FakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = session.TransportClosed
	t.closeCode = code
	return nil
}

func (t *FakeTransport) State() session.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *FakeTransport) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detached = true
	t.handlers = session.TransportHandlers{}
}

func (t *FakeTransport) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.detached
}

// Cancelled reports whether the session cancelled the dial context.
func (t *FakeTransport) Cancelled() bool {
	return t.ctx != nil && t.ctx.Err() != nil
}

func (t *FakeTransport) CloseCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCode
}

// FailSends makes Send return err (nil to stop).
func (t *FakeTransport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Written returns a copy of every payload sent so far.
func (t *FakeTransport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

// Frames decodes every written payload as a JSON object.
func (t *FakeTransport) Frames() []map[string]any {
	raw := t.Written()
	out := make([]map[string]any, 0, len(raw))
	for _, p := range raw {
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			m = map[string]any{"_raw": string(p)}
		}
		out = append(out, m)
	}
	return out
}

// Types returns the `type` field of every written frame.
func (t *FakeTransport) Types() []string {
	frames := t.Frames()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		typ, _ := f["type"].(string)
		out = append(out, typ)
	}
	return out
}

func (t *FakeTransport) Open() {
	t.mu.Lock()
	t.state = session.TransportOpen
	fn := t.handlers.OnOpen
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *FakeTransport) Deliver(data []byte) {
	t.mu.Lock()
	fn := t.handlers.OnMessage
	t.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (t *FakeTransport) Error(err error) {
	t.mu.Lock()
	fn := t.handlers.OnError
	t.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Drop simulates a remote close.
func (t *FakeTransport) Drop(code int, reason string) {
	t.mu.Lock()
	t.state = session.TransportClosed
	fn := t.handlers.OnClose
	t.mu.Unlock()
	if fn != nil {
		fn(code, reason)
	}
}

// Fail simulates a failed open: error then close, like a browser socket.
func (t *FakeTransport) Fail(err error) {
	t.Error(err)
	t.Drop(session.CloseAbnormalClosure, err.Error())
}
