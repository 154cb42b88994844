package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/groundctl/internal/auth"
	"github.com/danmuck/groundctl/internal/flightlog"
	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/observability"
	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	Version            = "0.1.0"
	defaultRecentLimit = 100
	shutdownTimeout    = 5 * time.Second
)

// SessionFactory builds a session wired to the bridge's handlers.
type SessionFactory func(h session.Handlers) (*session.Session, error)

// Journal is the read side of the flight log.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]flightlog.Entry, error)
	ByCommandID(ctx context.Context, commandID string) ([]flightlog.Entry, error)
}

type Config struct {
	ID          string
	CorsOrigins []string
	// Validator guards every route except /health and /metrics. Nil disables auth.
	Validator   auth.Validator
	Journal     Journal
	RecentLimit int
}

type Bridge struct {
	id       string
	router   *gin.Engine
	factory  SessionFactory
	journal  Journal
	outbox   *CommandOutbox
	appeared time.Time

	mu          sync.RWMutex
	sess        *session.Session
	recent      []session.Message
	recentLimit int
	lastError   string
}

func New(cfg Config, factory SessionFactory) *Bridge {
	observability.RegisterMetrics()
	if cfg.ID == "" {
		cfg.ID = "groundctl"
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = defaultRecentLimit
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logs.Logger()))
	r.Use(observability.RequestMetricsMiddleware(cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	b := &Bridge{
		id:          cfg.ID,
		router:      r,
		factory:     factory,
		journal:     cfg.Journal,
		outbox:      NewCommandOutbox(0),
		appeared:    time.Now(),
		recentLimit: cfg.RecentLimit,
	}
	b.registerRoutes(cfg.Validator)
	return b
}

func (b *Bridge) ID() string { return b.id }

func (b *Bridge) HTTPRouter() *gin.Engine { return b.router }

// Session returns the current session, if any.
func (b *Bridge) Session() *session.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sess
}

// Run serves until ctx is cancelled, then shuts the server down and ends
// the live session.
func (b *Bridge) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("bridge.Bridge.Run listening addr=%s id=%s", addr, b.id)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if s := b.Session(); s != nil {
		s.Disconnect()
	}
	logs.Infof("bridge.Bridge.Run stopped addr=%s", addr)
	return err
}

// connect reuses a live session or builds a new one, then waits for the
// connect attempt to finish.
func (b *Bridge) connect(ctx context.Context) (*session.Session, error) {
	b.mu.Lock()
	s := b.sess
	if s == nil || s.ReconnectSuppressed() {
		if s != nil {
			s.PreventAutoReconnect()
		}
		next, err := b.factory(b.handlers())
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		b.sess = next
		s = next
	}
	b.mu.Unlock()
	return s, s.Connect(ctx)
}

func (b *Bridge) disconnect() *session.Session {
	b.mu.RLock()
	s := b.sess
	b.mu.RUnlock()
	if s != nil {
		s.Disconnect()
	}
	return s
}

func (b *Bridge) handlers() session.Handlers {
	return session.Handlers{
		OnConnect: func() {
			logs.Infof("bridge.Bridge.onConnect id=%s", b.id)
		},
		OnDisconnect: func() {
			logs.Infof("bridge.Bridge.onDisconnect id=%s", b.id)
		},
		OnError: func(err error) {
			b.mu.Lock()
			b.lastError = err.Error()
			b.mu.Unlock()
		},
		OnMessage: b.onMessage,
	}
}

func (b *Bridge) onMessage(msg session.Message) {
	if fields, ok := msg.Fields(); ok {
		if id, ok := fields["commandId"].(string); ok && id != "" {
			if _, tracked := b.outbox.MarkReply(id, msg.Type(), time.Now()); tracked {
				logs.Debugf("bridge.Bridge.onMessage reply commandId=%s type=%s", id, msg.Type())
			}
		}
	}
	b.mu.Lock()
	b.recent = append(b.recent, msg)
	if over := len(b.recent) - b.recentLimit; over > 0 {
		b.recent = append([]session.Message(nil), b.recent[over:]...)
	}
	b.mu.Unlock()
}

// Recent returns up to limit inbound messages, oldest first.
func (b *Bridge) Recent(limit int) []session.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.recent) {
		limit = len(b.recent)
	}
	return append([]session.Message(nil), b.recent[len(b.recent)-limit:]...)
}

func (b *Bridge) status() gin.H {
	b.mu.RLock()
	s := b.sess
	lastError := b.lastError
	b.mu.RUnlock()

	out := gin.H{
		"id":            b.id,
		"state":         session.StateIdle.String(),
		"pending":       b.outbox.Unanswered(),
		"lastError":     lastError,
		"flightLog":     b.journal != nil,
		"hasSession":    s != nil,
		"uptime":        time.Since(b.appeared).String(),
		"bridgeVersion": Version,
	}
	if s != nil {
		out["state"] = s.State().String()
		out["address"] = s.Address()
		out["reconnectAttempt"] = s.ReconnectAttempt()
		out["maxReconnectAttempts"] = s.Config().MaxReconnectAttempts
		out["reconnectSuppressed"] = s.ReconnectSuppressed()
		out["heartbeat"] = s.HeartbeatActive()
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
