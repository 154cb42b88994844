package sioconn

import (
	"errors"
	"testing"

	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events struct {
	opens    int
	messages []string
	errs     []error
	closes   []int
	reasons  []string
}

func (e *events) handlers() session.TransportHandlers {
	return session.TransportHandlers{
		OnOpen:    func() { e.opens++ },
		OnMessage: func(data []byte) { e.messages = append(e.messages, string(data)) },
		OnError:   func(err error) { e.errs = append(e.errs, err) },
		OnClose: func(code int, reason string) {
			e.closes = append(e.closes, code)
			e.reasons = append(e.reasons, reason)
		},
	}
}

func TestHTTPAddress(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		in     string
		want   string
		secure bool
	}{
		{"sio://drone.local:5000", "http://drone.local:5000", false},
		{"sios://drone.local", "https://drone.local", true},
		{"https://gcs.example/ns", "https://gcs.example/ns", true},
	}
	for _, tc := range tests {
		got, secure, err := HTTPAddress(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.secure, secure)
	}
	_, _, err := HTTPAddress("ws://drone")
	assert.True(t, errors.Is(err, session.ErrUnsupportedAddress))
}

func TestConnEventTranslation(t *testing.T) {
	testlog.Start(t)
	ev := &events{}
	c := &Conn{handlers: ev.handlers(), state: session.TransportConnecting}

	require.ErrorIs(t, c.Send([]byte(`{"type":"ping"}`)), session.ErrTransportNotOpen)

	c.onConnect()
	c.onConnect()
	assert.Equal(t, 1, ev.opens)
	assert.Equal(t, session.TransportOpen, c.State())

	c.onMessage([]any{map[string]any{"type": "telemetry", "alt": 10.5}})
	c.onMessage([]any{`{"type":"status"}`})
	c.onMessage(nil)
	require.Len(t, ev.messages, 2)
	assert.JSONEq(t, `{"type":"telemetry","alt":10.5}`, ev.messages[0])
	assert.Equal(t, `{"type":"status"}`, ev.messages[1])

	c.onDisconnect([]any{"io server disconnect"})
	c.onDisconnect([]any{"transport close"})
	assert.Equal(t, []int{session.CloseGoingAway}, ev.closes)
	assert.Equal(t, session.TransportClosed, c.State())
}

func TestConnectErrorReportsErrorThenClose(t *testing.T) {
	testlog.Start(t)
	ev := &events{}
	c := &Conn{handlers: ev.handlers(), state: session.TransportConnecting}

	c.onConnectError([]any{errors.New("xhr poll error")})
	require.Len(t, ev.errs, 1)
	assert.Contains(t, ev.errs[0].Error(), "xhr poll error")
	assert.Equal(t, []int{session.CloseAbnormalClosure}, ev.closes)
	assert.Equal(t, 0, ev.opens)
}

func TestLocalCloseWinsAndDetachSilences(t *testing.T) {
	testlog.Start(t)
	ev := &events{}
	c := &Conn{handlers: ev.handlers(), state: session.TransportOpen}

	require.NoError(t, c.Close(session.CloseNormalClosure, "client disconnect"))
	require.NoError(t, c.Close(session.CloseGoingAway, "again"))
	c.onDisconnect([]any{"transport close"})
	assert.Equal(t, []int{session.CloseNormalClosure}, ev.closes)
	assert.Equal(t, []string{"client disconnect"}, ev.reasons)

	quiet := &events{}
	d := &Conn{handlers: quiet.handlers(), state: session.TransportOpen}
	d.Detach()
	d.onMessage([]any{"x"})
	require.NoError(t, d.Close(session.CloseNormalClosure, ""))
	assert.Empty(t, quiet.messages)
	assert.Empty(t, quiet.closes)
}
