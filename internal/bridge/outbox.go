package bridge

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PendingCommand tracks one command sent through the bridge until the drone
// answers with a frame carrying the same commandId.
type PendingCommand struct {
	CommandID string    `json:"commandId"`
	Type      string    `json:"type"`
	SentAt    time.Time `json:"sentAt"`
	Replies   int       `json:"replies"`
	LastReply string    `json:"lastReply,omitempty"`
	RepliedAt time.Time `json:"repliedAt,omitzero"`
}

// Answered reports whether any reply has been seen.
func (p PendingCommand) Answered() bool { return p.Replies > 0 }

// CommandOutbox stores commands by commandId. It keeps at most limit
// entries, evicting the oldest sent.
type CommandOutbox struct {
	mu    sync.RWMutex
	limit int
	items map[string]PendingCommand
}

func NewCommandOutbox(limit int) *CommandOutbox {
	if limit <= 0 {
		limit = 256
	}
	return &CommandOutbox{
		limit: limit,
		items: make(map[string]PendingCommand),
	}
}

func (o *CommandOutbox) Track(item PendingCommand) {
	key := strings.TrimSpace(item.CommandID)
	if key == "" {
		return
	}
	item.CommandID = key
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[key] = item
	for len(o.items) > o.limit {
		o.evictOldestLocked()
	}
}

// MarkReply records an inbound frame for commandID. Unknown ids are ignored.
func (o *CommandOutbox) MarkReply(commandID, replyType string, at time.Time) (PendingCommand, bool) {
	key := strings.TrimSpace(commandID)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return PendingCommand{}, false
	}
	item.Replies++
	item.LastReply = strings.TrimSpace(replyType)
	item.RepliedAt = at
	o.items[key] = item
	return item, true
}

// Remove forgets commandID and reports whether it was tracked.
func (o *CommandOutbox) Remove(commandID string) bool {
	key := strings.TrimSpace(commandID)
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.items[key]; !ok {
		return false
	}
	delete(o.items, key)
	return true
}

// Unanswered counts commands with no reply yet.
func (o *CommandOutbox) Unanswered() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, item := range o.items {
		if !item.Answered() {
			n++
		}
	}
	return n
}

func (o *CommandOutbox) Get(commandID string) (PendingCommand, bool) {
	key := strings.TrimSpace(commandID)
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[key]
	return item, ok
}

// List returns all entries, most recently sent first.
func (o *CommandOutbox) List() []PendingCommand {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingCommand, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].CommandID < out[j].CommandID
	})
	return out
}

func (o *CommandOutbox) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, item := range o.items {
		if oldestKey == "" || item.SentAt.Before(oldest) || (item.SentAt.Equal(oldest) && k < oldestKey) {
			oldestKey, oldest = k, item.SentAt
		}
	}
	delete(o.items, oldestKey)
}
