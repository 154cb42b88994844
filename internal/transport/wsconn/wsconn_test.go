package wsconn

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/testutil/testlog"
	"github.com/danmuck/groundctl/internal/testutil/tlstest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeEvent struct {
	code   int
	reason string
}

type recorder struct {
	opened   chan struct{}
	messages chan string
	errs     chan error
	closed   chan closeEvent
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		messages: make(chan string, 16),
		errs:     make(chan error, 4),
		closed:   make(chan closeEvent, 4),
	}
}

func (r *recorder) handlers() session.TransportHandlers {
	return session.TransportHandlers{
		OnOpen:    func() { r.opened <- struct{}{} },
		OnMessage: func(data []byte) { r.messages <- string(data) },
		OnError:   func(err error) { r.errs <- err },
		OnClose:   func(code int, reason string) { r.closed <- closeEvent{code, reason} },
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// echoServer echoes text frames and answers "bye" with a going-away close.
func echoServer(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
					time.Now().Add(time.Second),
				)
				return
			}
			if err := conn.WriteMessage(typ, data); err != nil {
				return
			}
		}
	})
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestDialSendReceiveAndRemoteClose(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(echoServer(t))
	defer srv.Close()

	rec := newRecorder()
	tr, err := NewDialer().Dial(context.Background(), wsURL(srv.URL), session.DefaultConfig(), rec.handlers())
	require.NoError(t, err)
	assert.Equal(t, session.TransportConnecting, tr.State())

	waitFor(t, rec.opened, "open")
	assert.Equal(t, session.TransportOpen, tr.State())

	require.NoError(t, tr.Send([]byte(`{"type":"ping"}`)))
	assert.Equal(t, `{"type":"ping"}`, waitFor(t, rec.messages, "echo"))

	require.NoError(t, tr.Send([]byte("bye")))
	ev := waitFor(t, rec.closed, "close")
	assert.Equal(t, session.CloseGoingAway, ev.code)
	assert.Equal(t, "server shutdown", ev.reason)
	assert.Equal(t, session.TransportClosed, tr.State())
	assert.ErrorIs(t, tr.Send([]byte("late")), session.ErrTransportNotOpen)
	assert.Empty(t, rec.errs)
}

func TestLocalCloseReportsNormalClosure(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(echoServer(t))
	defer srv.Close()

	rec := newRecorder()
	tr, err := NewDialer().Dial(context.Background(), wsURL(srv.URL), session.DefaultConfig(), rec.handlers())
	require.NoError(t, err)
	waitFor(t, rec.opened, "open")

	require.NoError(t, tr.Close(session.CloseNormalClosure, "client disconnect"))
	assert.NotEqual(t, session.TransportOpen, tr.State())
	require.NoError(t, tr.Close(session.CloseNormalClosure, "again"))

	ev := waitFor(t, rec.closed, "close")
	assert.Equal(t, session.CloseNormalClosure, ev.code)
	assert.Equal(t, session.TransportClosed, tr.State())
}

func TestFailedDialReportsErrorThenAbnormalClose(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	rec := newRecorder()
	_, err = NewDialer().Dial(context.Background(), "ws://"+addr, session.DefaultConfig(), rec.handlers())
	require.NoError(t, err)

	require.Error(t, waitFor(t, rec.errs, "error"))
	ev := waitFor(t, rec.closed, "close")
	assert.Equal(t, session.CloseAbnormalClosure, ev.code)
	select {
	case <-rec.opened:
		t.Fatalf("unexpected open")
	default:
	}
}

func TestDetachSilencesEvents(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(echoServer(t))
	defer srv.Close()

	rec := newRecorder()
	tr, err := NewDialer().Dial(context.Background(), wsURL(srv.URL), session.DefaultConfig(), rec.handlers())
	require.NoError(t, err)
	waitFor(t, rec.opened, "open")

	tr.Detach()
	require.NoError(t, tr.Close(session.CloseNormalClosure, ""))
	require.Eventually(t, func() bool { return tr.State() == session.TransportClosed }, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, rec.closed)
}

func TestDialRejectsUnsupportedScheme(t *testing.T) {
	testlog.Start(t)
	_, err := NewDialer().Dial(context.Background(), "tcp://drone:8765", session.DefaultConfig(), session.TransportHandlers{})
	require.True(t, errors.Is(err, session.ErrUnsupportedAddress), "got %v", err)
}

func TestDialSecureWithCustomCA(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "groundctl-test-ca")
	srv := httptest.NewUnstartedServer(echoServer(t))
	srv.TLS = ca.ServerTLSConfig(t, dir, "localhost", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	srv.StartTLS()
	defer srv.Close()

	cfg := session.DefaultConfig()
	cfg.Address = wsURL(srv.URL)
	cfg.TLS = session.TLSConfig{Enabled: true, CAFile: ca.CAFile()}

	rec := newRecorder()
	tr, err := NewDialer().Dial(context.Background(), cfg.Address, cfg, rec.handlers())
	require.NoError(t, err)
	waitFor(t, rec.opened, "open")
	require.NoError(t, tr.Send([]byte(`{"type":"ping"}`)))
	assert.Equal(t, `{"type":"ping"}`, waitFor(t, rec.messages, "echo"))
	require.NoError(t, tr.Close(session.CloseNormalClosure, ""))
	waitFor(t, rec.closed, "close")

	// Without the CA the handshake must fail verification.
	cfg.TLS.CAFile = ""
	rec = newRecorder()
	_, err = NewDialer().Dial(context.Background(), cfg.Address, cfg, rec.handlers())
	require.NoError(t, err)
	assert.Error(t, waitFor(t, rec.errs, "verify error"))
	waitFor(t, rec.closed, "close")
}
