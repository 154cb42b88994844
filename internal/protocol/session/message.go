package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageReconnectAttempt is the type of the notification the session injects
// into the message stream before each automatic reconnect.
const MessageReconnectAttempt = "reconnect_attempt"

// Message is one inbound frame, kept as raw JSON. The session does not
// interpret it beyond reading the optional `type` field.
type Message struct {
	raw json.RawMessage
	typ string
}

// ParseMessage validates data as JSON and wraps it.
func ParseMessage(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	msg := Message{raw: append(json.RawMessage(nil), trimmed...)}
	if obj, ok := decoded.(map[string]any); ok {
		if t, ok := obj["type"].(string); ok {
			msg.typ = t
		}
	}
	return msg, nil
}

// Type returns the `type` field, or "" when absent or not a string.
func (m Message) Type() string { return m.typ }

// Raw returns the frame bytes exactly as received.
func (m Message) Raw() json.RawMessage { return m.raw }

// Decode unmarshals the frame into v.
func (m Message) Decode(v any) error {
	if len(m.raw) == 0 {
		return fmt.Errorf("%w: empty message", ErrMalformedFrame)
	}
	return json.Unmarshal(m.raw, v)
}

// Fields decodes the frame as a JSON object.
func (m Message) Fields() (map[string]any, bool) {
	var out map[string]any
	if err := m.Decode(&out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func (m Message) String() string { return string(m.raw) }

// ReconnectAttempt is the payload of a MessageReconnectAttempt notification.
type ReconnectAttempt struct {
	Type        string `json:"type"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	DelayMS     int64  `json:"delayMs"`
}

func newReconnectMessage(n ReconnectAttempt) Message {
	n.Type = MessageReconnectAttempt
	raw, _ := json.Marshal(n)
	return Message{raw: raw, typ: MessageReconnectAttempt}
}
