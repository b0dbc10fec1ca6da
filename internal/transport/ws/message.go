package ws

import (
	"encoding/json"
	"time"
)

// Message types discriminated by the "type" field.
const (
	TypeConnected    = "connected"
	TypeNotification = "notification"
	TypeHeartbeat    = "heartbeat"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeSystem       = "system"
	TypeError        = "error"
)

// Message is the socket envelope in both directions.
type Message struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"` // system message subtype
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // epoch milliseconds
}

// body returns the nested data, or the whole frame for flat messages.
func (m *Message) body(raw []byte) []byte {
	if len(m.Data) > 0 {
		return m.Data
	}
	return raw
}

func newPing(now time.Time) Message {
	return Message{Type: TypePing, Timestamp: now.UnixMilli()}
}

func newPong(now time.Time) Message {
	return Message{Type: TypePong, Timestamp: now.UnixMilli()}
}
