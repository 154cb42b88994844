package session

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/observability"
	"github.com/google/uuid"
)

// Handlers is the caller's callback bundle. Any field may be nil.
//
// Callbacks run after the session releases its lock, so they may call back
// into the session. None runs on the goroutine of a Connect call before that
// call returns; a synchronous dial failure is delivered through the Clock.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnError      func(err error)
	OnMessage    func(msg Message)
}

// CommandRecorder journals application traffic. Implementations must not block.
type CommandRecorder interface {
	RecordOutbound(commandID string, frameType string, payload []byte, at time.Time)
	RecordInbound(msg Message, at time.Time)
}

// Option customizes a Session at construction.
type Option func(*Session)

func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithRecorder(r CommandRecorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithIDGenerator overrides commandId generation (uuid v4 by default).
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Session owns one drone-server connection: lifecycle, heartbeat, bounded
// reconnects, outbound command framing, and inbound dispatch.
type Session struct {
	cfg      Config
	dialer   Dialer
	handlers Handlers
	clock    Clock
	recorder CommandRecorder
	newID    func() string
	rng      *rand.Rand

	mu                    sync.Mutex
	state                 State
	transport             Transport
	transportCancel       context.CancelFunc
	generation            uint64
	reconnectAttempt      int
	intentionalDisconnect bool
	reconnectSuppressed   bool
	timerSeq              uint64
	heartbeat             *timerHandle
	connectTimeout        *timerHandle
	reconnectTimers       map[uint64]*timerHandle
	pendingConnect        chan error
}

// New builds an idle Session. cfg is defaulted and validated.
func New(cfg Config, dialer Dialer, handlers Handlers, opts ...Option) (*Session, error) {
	if dialer == nil {
		return nil, ErrDialerRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:             cfg,
		dialer:          dialer,
		handlers:        handlers,
		clock:           RealClock{},
		newID:           uuid.NewString,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		state:           StateIdle,
		reconnectTimers: make(map[uint64]*timerHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) Address() string { return s.cfg.Address }

func (s *Session) Config() Config { return s.cfg }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ReconnectAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempt
}

// ReconnectSuppressed reports whether automatic reconnects are permanently off.
func (s *Session) ReconnectSuppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectSuppressed
}

// PendingReconnects returns the number of scheduled, unfired reconnect timers.
func (s *Session) PendingReconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reconnectTimers)
}

// HeartbeatActive reports whether the heartbeat timer is armed.
func (s *Session) HeartbeatActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeat != nil
}

// Connect opens the transport and blocks until it is open, the connect
// timeout fires, the transport fails, or ctx is done. It returns nil without
// action while the session is already connecting or open.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateOpen {
		s.mu.Unlock()
		logs.Debugf("session.Session.Connect skipped state=%s addr=%q", s.state, s.cfg.Address)
		return nil
	}
	s.cancelReconnectTimersLocked()
	s.intentionalDisconnect = false
	s.reconnectAttempt = 0
	s.stopHeartbeatLocked()
	s.teardownTransportLocked()

	waiter := make(chan error, 1)
	s.pendingConnect = waiter
	calls := s.openLocked()
	s.mu.Unlock()
	if len(calls) > 0 {
		// A synchronous dial failure is reported after Connect returns.
		s.clock.AfterFunc(0, func() { runCalls(calls) })
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect is terminal for this Session: it suppresses reconnects, cancels
// every timer, sends a best-effort disconnect frame, closes the transport, and
// invokes OnDisconnect before returning.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.intentionalDisconnect = true
	s.reconnectSuppressed = true
	s.cancelReconnectTimersLocked()
	s.stopHeartbeatLocked()
	s.stopConnectTimeoutLocked()

	if t := s.transport; t != nil {
		t.Detach()
		if t.State() == TransportOpen {
			s.state = StateClosing
			if err := s.writeLocked(DisconnectFrame{}); err != nil {
				logs.Debugf("session.Session.Disconnect notify failed addr=%q err=%v", s.cfg.Address, err)
			}
			if err := t.Close(CloseNormalClosure, "client disconnect"); err != nil {
				logs.Debugf("session.Session.Disconnect close failed addr=%q err=%v", s.cfg.Address, err)
			}
		}
	}
	s.teardownTransportLocked()
	s.state = StateClosed
	s.resolveConnectLocked(ErrDisconnected)
	s.mu.Unlock()

	logs.Infof("session.Session.Disconnect addr=%q", s.cfg.Address)
	observability.RecordSessionDisconnect("intentional")
	if fn := s.handlers.OnDisconnect; fn != nil {
		fn()
	}
}

// PreventAutoReconnect permanently disables automatic reconnects without
// closing an open connection.
func (s *Session) PreventAutoReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectSuppressed = true
	s.cancelReconnectTimersLocked()
}

// SendCommand writes `{type: command, ...params}`.
func (s *Session) SendCommand(command string, params map[string]any) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	frame := CommandFrame{Command: command, Params: params}
	if _, ok := params["type"]; ok {
		logs.Debugf("session.Session.SendCommand params.type ignored command=%q", command)
	}

	s.mu.Lock()
	if err := s.requireOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	payload, err := s.writeFrameLocked(frame)
	now := s.clock.Now()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	commandID, _ := params["commandId"].(string)
	s.record(commandID, command, payload, now)
	return nil
}

// SendGoToLocation validates and writes a go_to_location frame. It returns
// the generated commandId.
func (s *Session) SendGoToLocation(latitude, longitude, altitude float64) (string, error) {
	s.mu.Lock()
	if err := s.requireOpenLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if err := ValidateGoToLocation(latitude, longitude, altitude); err != nil {
		s.mu.Unlock()
		return "", err
	}
	now := s.clock.Now()
	frame, err := BuildGoToLocation(latitude, longitude, altitude, now.UnixMilli(), s.newID())
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	payload, err := s.writeFrameLocked(frame)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	logs.Infof(
		"session.Session.SendGoToLocation command_id=%s lat=%.6f lon=%.6f alt=%d",
		frame.CommandID, frame.Latitude, frame.Longitude, frame.Altitude,
	)
	s.record(frame.CommandID, FrameGoToLocation, payload, now)
	return frame.CommandID, nil
}

// SendExecuteWaypoints writes an execute_waypoints mission in slice order.
// It returns the generated commandId.
func (s *Session) SendExecuteWaypoints(waypoints []Waypoint) (string, error) {
	s.mu.Lock()
	if err := s.requireOpenLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if len(waypoints) < MinWaypoints {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: got %d, need at least %d", ErrTooFewWaypoints, len(waypoints), MinWaypoints)
	}
	now := s.clock.Now()
	frame, err := BuildExecuteWaypoints(waypoints, now.UnixMilli(), "")
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	frame.CommandID = s.newID()
	payload, err := s.writeFrameLocked(frame)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	logs.Infof("session.Session.SendExecuteWaypoints command_id=%s waypoints=%d", frame.CommandID, frame.TotalWaypoints)
	s.record(frame.CommandID, FrameExecuteWaypoints, payload, now)
	return frame.CommandID, nil
}

// openLocked dials a fresh transport and arms the connect timeout.
func (s *Session) openLocked() []func() {
	s.generation++
	gen := s.generation
	s.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	h := TransportHandlers{
		OnOpen:    func() { s.onTransportOpen(gen) },
		OnMessage: func(data []byte) { s.onTransportMessage(gen, data) },
		OnError:   func(err error) { s.onTransportError(gen, err) },
		OnClose:   func(code int, reason string) { s.onTransportClose(gen, code, reason) },
	}
	logs.Debugf("session.Session.open addr=%q gen=%d attempt=%d", s.cfg.Address, gen, s.reconnectAttempt)
	t, err := s.dialer.Dial(ctx, s.cfg.Address, s.cfg, h)
	if err != nil {
		cancel()
		logs.Warnf("session.Session.open dial failed addr=%q err=%v", s.cfg.Address, err)
		s.resolveConnectLocked(err)
		calls := []func(){s.errorCall(err)}
		return append(calls, s.handleClosedLocked("dial failed")...)
	}
	s.transport = t
	s.transportCancel = cancel

	s.timerSeq++
	id := s.timerSeq
	s.connectTimeout = &timerHandle{
		id:    id,
		timer: s.clock.AfterFunc(s.cfg.ConnectTimeout, func() { s.onConnectTimeout(gen, id) }),
	}
	return nil
}

func (s *Session) onTransportOpen(gen uint64) {
	s.mu.Lock()
	if !s.currentLocked(gen) || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.stopConnectTimeoutLocked()
	s.state = StateOpen
	s.reconnectAttempt = 0
	if err := s.writeLocked(IdentityFrame{ClientType: s.cfg.ClientType}); err != nil {
		logs.Warnf("session.Session.onOpen identity failed addr=%q err=%v", s.cfg.Address, err)
	}
	s.startHeartbeatLocked()
	waiter := s.pendingConnect
	s.mu.Unlock()

	logs.Infof("session.Session.onOpen connected addr=%q", s.cfg.Address)
	observability.RecordSessionConnect()
	if fn := s.handlers.OnConnect; fn != nil {
		fn()
	}

	// OnConnect may have disconnected or lost the link; those paths already
	// rejected the waiter.
	s.mu.Lock()
	if waiter != nil && s.pendingConnect == waiter {
		s.resolveConnectLocked(nil)
	}
	s.mu.Unlock()
}

func (s *Session) onTransportMessage(gen uint64, data []byte) {
	s.mu.Lock()
	current := s.currentLocked(gen)
	s.mu.Unlock()
	if !current {
		return
	}

	msg, err := ParseMessage(data)
	if err != nil {
		logs.Warnf("session.Session.onMessage dropped addr=%q bytes=%d err=%v", s.cfg.Address, len(data), err)
		observability.RecordInboundFrame("malformed")
		return
	}
	observability.RecordInboundFrame("ok")
	logs.Tracef("session.Session.onMessage type=%q bytes=%d", msg.Type(), len(data))
	if s.recorder != nil {
		s.recorder.RecordInbound(msg, s.clock.Now())
	}
	if fn := s.handlers.OnMessage; fn != nil {
		fn(msg)
	}
}

func (s *Session) onTransportError(gen uint64, err error) {
	s.mu.Lock()
	if !s.currentLocked(gen) {
		s.mu.Unlock()
		return
	}
	if s.state == StateConnecting {
		s.stopConnectTimeoutLocked()
		s.resolveConnectLocked(err)
	}
	s.mu.Unlock()

	logs.Warnf("session.Session.onError addr=%q err=%v", s.cfg.Address, err)
	runCalls([]func(){s.errorCall(err)})
}

func (s *Session) onTransportClose(gen uint64, code int, reason string) {
	s.mu.Lock()
	if !s.currentLocked(gen) {
		s.mu.Unlock()
		return
	}
	logs.Infof("session.Session.onClose addr=%q code=%d reason=%q", s.cfg.Address, code, reason)
	calls := s.handleClosedLocked(fmt.Sprintf("closed code=%d", code))
	s.mu.Unlock()
	runCalls(calls)
}

func (s *Session) onConnectTimeout(gen uint64, id uint64) {
	s.mu.Lock()
	if s.connectTimeout == nil || s.connectTimeout.id != id {
		s.mu.Unlock()
		return
	}
	s.connectTimeout = nil
	if !s.currentLocked(gen) || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	err := fmt.Errorf("%w: after %s addr=%q", ErrConnectTimeout, s.cfg.ConnectTimeout, s.cfg.Address)
	logs.Warnf("session.Session.onConnectTimeout addr=%q timeout=%s", s.cfg.Address, s.cfg.ConnectTimeout)
	s.resolveConnectLocked(err)
	calls := []func(){s.errorCall(err)}
	calls = append(calls, s.handleClosedLocked("connect timeout")...)
	s.mu.Unlock()
	runCalls(calls)
}

// handleClosedLocked is the single place that decides between reconnecting
// and reporting a disconnect.
func (s *Session) handleClosedLocked(reason string) []func() {
	s.stopHeartbeatLocked()
	s.stopConnectTimeoutLocked()
	s.teardownTransportLocked()
	s.state = StateClosed
	s.resolveConnectLocked(fmt.Errorf("%w: %s", ErrConnectionClosed, reason))

	if s.intentionalDisconnect || s.reconnectSuppressed {
		return []func(){s.disconnectCall("suppressed")}
	}
	if s.reconnectAttempt >= s.cfg.MaxReconnectAttempts {
		s.reconnectSuppressed = true
		logs.Warnf(
			"session.Session.reconnect exhausted addr=%q attempts=%d",
			s.cfg.Address, s.reconnectAttempt,
		)
		return []func(){s.disconnectCall("exhausted")}
	}

	s.reconnectAttempt++
	attempt := s.reconnectAttempt
	delay := NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)
	s.timerSeq++
	id := s.timerSeq
	s.reconnectTimers[id] = &timerHandle{
		id:    id,
		timer: s.clock.AfterFunc(delay, func() { s.onReconnectTimer(id) }),
	}
	logs.Infof(
		"session.Session.reconnect scheduled addr=%q attempt=%d/%d delay=%s",
		s.cfg.Address, attempt, s.cfg.MaxReconnectAttempts, delay,
	)
	observability.RecordReconnectAttempt()

	note := newReconnectMessage(ReconnectAttempt{
		Attempt:     attempt,
		MaxAttempts: s.cfg.MaxReconnectAttempts,
		DelayMS:     delay.Milliseconds(),
	})
	return []func(){func() {
		if fn := s.handlers.OnMessage; fn != nil {
			fn(note)
		}
	}}
}

// onReconnectTimer re-checks state at fire time since it may have changed
// after scheduling.
func (s *Session) onReconnectTimer(id uint64) {
	s.mu.Lock()
	if _, ok := s.reconnectTimers[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.reconnectTimers, id)
	if s.state == StateOpen || s.state == StateConnecting || s.intentionalDisconnect || s.reconnectSuppressed {
		logs.Debugf("session.Session.reconnect skipped addr=%q state=%s", s.cfg.Address, s.state)
		s.mu.Unlock()
		return
	}
	logs.Infof("session.Session.reconnect attempt=%d addr=%q", s.reconnectAttempt, s.cfg.Address)
	calls := s.openLocked()
	s.mu.Unlock()
	runCalls(calls)
}

func (s *Session) startHeartbeatLocked() {
	s.stopHeartbeatLocked()
	s.timerSeq++
	id := s.timerSeq
	s.heartbeat = &timerHandle{
		id:    id,
		timer: s.clock.AfterFunc(s.cfg.HeartbeatInterval, func() { s.onHeartbeat(id) }),
	}
}

func (s *Session) onHeartbeat(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeat == nil || s.heartbeat.id != id {
		return
	}
	if s.state == StateOpen && s.transport != nil && s.transport.State() == TransportOpen {
		if err := s.writeLocked(PingFrame{}); err != nil {
			logs.Debugf("session.Session.heartbeat ping failed addr=%q err=%v", s.cfg.Address, err)
		}
	}
	s.startHeartbeatLocked()
}

func (s *Session) stopHeartbeatLocked() {
	s.heartbeat.stop()
	s.heartbeat = nil
}

func (s *Session) stopConnectTimeoutLocked() {
	s.connectTimeout.stop()
	s.connectTimeout = nil
}

func (s *Session) cancelReconnectTimersLocked() {
	for id, h := range s.reconnectTimers {
		h.stop()
		delete(s.reconnectTimers, id)
	}
}

// teardownTransportLocked detaches listeners before closing so the old
// transport cannot deliver events into this session.
func (s *Session) teardownTransportLocked() {
	t := s.transport
	cancel := s.transportCancel
	s.transport = nil
	s.transportCancel = nil
	if t != nil {
		t.Detach()
		if st := t.State(); st != TransportClosed && st != TransportClosing {
			if err := t.Close(CloseNormalClosure, "session teardown"); err != nil {
				logs.Debugf("session.Session.teardown close err=%v", err)
			}
		}
	}
	if cancel != nil {
		cancel()
	}
}

func (s *Session) resolveConnectLocked(err error) {
	if s.pendingConnect == nil {
		return
	}
	s.pendingConnect <- err
	s.pendingConnect = nil
}

func (s *Session) currentLocked(gen uint64) bool {
	return gen == s.generation && s.transport != nil
}

func (s *Session) requireOpenLocked() error {
	if s.state != StateOpen || s.transport == nil || s.transport.State() != TransportOpen {
		return fmt.Errorf("%w: state=%s", ErrNotConnected, s.state)
	}
	return nil
}

func (s *Session) writeLocked(f Frame) error {
	_, err := s.writeFrameLocked(f)
	return err
}

func (s *Session) writeFrameLocked(f Frame) ([]byte, error) {
	if s.transport == nil {
		return nil, ErrNotConnected
	}
	payload, err := EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	if err := s.transport.Send(payload); err != nil {
		return nil, fmt.Errorf("session: write %s: %w", f.FrameType(), err)
	}
	observability.RecordFrameSent(frameLabel(f))
	return payload, nil
}

func (s *Session) record(commandID, frameType string, payload []byte, at time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordOutbound(commandID, frameType, payload, at)
}

func (s *Session) errorCall(err error) func() {
	return func() {
		if fn := s.handlers.OnError; fn != nil {
			fn(err)
		}
	}
}

func (s *Session) disconnectCall(reason string) func() {
	return func() {
		observability.RecordSessionDisconnect(reason)
		if fn := s.handlers.OnDisconnect; fn != nil {
			fn()
		}
	}
}

// Generic commands share one label to keep metric cardinality bounded.
func frameLabel(f Frame) string {
	if _, ok := f.(CommandFrame); ok {
		return "command"
	}
	return f.FrameType()
}

func runCalls(calls []func()) {
	for _, call := range calls {
		call()
	}
}
