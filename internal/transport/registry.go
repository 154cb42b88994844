// Package transport selects a session.Dialer for an address.
package transport

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/groundctl/internal/protocol/session"
	"github.com/danmuck/groundctl/internal/transport/sioconn"
	"github.com/danmuck/groundctl/internal/transport/wsconn"
)

const (
	KindWebSocket = "websocket"
	KindSocketIO  = "socketio"
)

// Entry binds a transport kind to the URL schemes it serves.
type Entry struct {
	Kind    string
	Schemes []string
	New     func() session.Dialer
}

var (
	mu       sync.RWMutex
	registry = map[string]Entry{}
)

func init() {
	Register(Entry{
		Kind:    KindWebSocket,
		Schemes: []string{"ws", "wss"},
		New:     func() session.Dialer { return wsconn.NewDialer() },
	})
	Register(Entry{
		Kind:    KindSocketIO,
		Schemes: []string{"sio", "sios"},
		New:     func() session.Dialer { return sioconn.NewDialer() },
	})
}

func Register(e Entry) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(e.Kind)] = e
}

func Get(kind string) (Entry, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := registry[strings.ToLower(strings.TrimSpace(kind))]
	return e, ok
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ForAddress returns a dialer for address. An explicit kind wins; otherwise
// the kind is inferred from the address scheme.
func ForAddress(kind, address string) (session.Dialer, error) {
	if strings.TrimSpace(kind) != "" {
		e, ok := Get(kind)
		if !ok {
			return nil, fmt.Errorf("%w: unknown transport %q (have %s)", session.ErrUnsupportedAddress, kind, strings.Join(Kinds(), ", "))
		}
		return e.New(), nil
	}

	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrUnsupportedAddress, err)
	}
	scheme := strings.ToLower(u.Scheme)

	mu.RLock()
	defer mu.RUnlock()
	for _, e := range registry {
		for _, s := range e.Schemes {
			if s == scheme {
				return e.New(), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: scheme %q", session.ErrUnsupportedAddress, u.Scheme)
}
