// Package flightlog journals session traffic to SQLite so a mission can be
// reviewed after the link drops.
package flightlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danmuck/groundctl/internal/logs"
	"github.com/danmuck/groundctl/internal/protocol/session"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DirectionOutbound = "out"
	DirectionInbound  = "in"

	defaultQueueSize = 256
	defaultLimit     = 50
)

var ErrClosed = errors.New("flightlog: store closed")

// Entry is one journaled frame.
type Entry struct {
	ID         int64           `json:"id"`
	Direction  string          `json:"direction"`
	CommandID  string          `json:"commandId,omitempty"`
	FrameType  string          `json:"frameType"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Store is a session.CommandRecorder backed by SQLite. Writes go through a
// bounded queue drained by one goroutine; a full queue drops the entry.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	drained *sync.Cond
	closed  bool
	queue   chan Entry
	pending int
	done    chan struct{}
}

var _ session.CommandRecorder = (*Store)(nil)

// Open creates or opens the journal at path and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("flightlog: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("flightlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("flightlog: ping: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:    db,
		queue: make(chan Entry, defaultQueueSize),
		done:  make(chan struct{}),
	}
	s.drained = sync.NewCond(&s.mu)
	go s.writer()
	logs.Debugf("flightlog opened path=%s", path)
	return s, nil
}

func (s *Store) RecordOutbound(commandID string, frameType string, payload []byte, at time.Time) {
	s.enqueue(Entry{
		Direction:  DirectionOutbound,
		CommandID:  commandID,
		FrameType:  frameType,
		Payload:    append(json.RawMessage(nil), payload...),
		RecordedAt: at,
	})
}

func (s *Store) RecordInbound(msg session.Message, at time.Time) {
	e := Entry{
		Direction:  DirectionInbound,
		FrameType:  msg.Type(),
		Payload:    append(json.RawMessage(nil), msg.Raw()...),
		RecordedAt: at,
	}
	if fields, ok := msg.Fields(); ok {
		if id, ok := fields["commandId"].(string); ok {
			e.CommandID = id
		}
	}
	s.enqueue(e)
}

func (s *Store) enqueue(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
		s.pending++
	default:
		logs.Warnf("flightlog: queue full, dropped %s frame type=%q", e.Direction, e.FrameType)
	}
}

func (s *Store) writer() {
	defer close(s.done)
	for e := range s.queue {
		if err := s.insert(e); err != nil {
			logs.Errf("flightlog: insert %s frame type=%q err=%v", e.Direction, e.FrameType, err)
		}
		s.mu.Lock()
		s.pending--
		if s.pending == 0 {
			s.drained.Broadcast()
		}
		s.mu.Unlock()
	}
}

func (s *Store) insert(e Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO frames (direction, command_id, frame_type, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.Direction, nullString(e.CommandID), e.FrameType, string(e.Payload), e.RecordedAt.UnixMilli(),
	)
	return err
}

// Sync blocks until every queued entry has been written.
func (s *Store) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.drained.Wait()
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.query(ctx,
		`SELECT id, direction, command_id, frame_type, payload, recorded_at FROM frames ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

// ByCommandID returns the outbound command and any replies echoing its id,
// oldest first.
func (s *Store) ByCommandID(ctx context.Context, commandID string) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, direction, command_id, frame_type, payload, recorded_at FROM frames WHERE command_id = ? ORDER BY id ASC`,
		commandID,
	)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("flightlog: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			commandID sql.NullString
			payload   string
			at        int64
		)
		if err := rows.Scan(&e.ID, &e.Direction, &commandID, &e.FrameType, &payload, &at); err != nil {
			return nil, fmt.Errorf("flightlog: scan: %w", err)
		}
		e.CommandID = commandID.String
		e.Payload = json.RawMessage(payload)
		e.RecordedAt = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close drains the queue and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
