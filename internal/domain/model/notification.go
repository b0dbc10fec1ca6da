package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is the server-assigned notification identity. It is stable across the
// live channel and the history store and is the dedup key of the local cache.
type ID string

// UnmarshalJSON accepts both string and numeric ids.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("notification id: not an integer: %s", n)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type NotificationType string

const (
	TypeGeneric NotificationType = "generic"
	TypeMention NotificationType = "mention"
)

// TargetKind tags the entity a notification points to.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
	TargetUser    TargetKind = "user"
	TargetThread  TargetKind = "thread"
)

// Target is the navigation reference of a notification (kind + id).
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

func (t Target) IsZero() bool { return t.Kind == "" && t.ID == "" }

// Notification is an immutable delivered item. Client-side, only the read flag
// ever changes.
type Notification struct {
	ID        ID               `json:"id"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"is_read"`
	UserID    string           `json:"user_id"`
	Target    Target           `json:"target"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// UnmarshalJSON reads the snake_case wire fields and also accepts the
// camelCase spellings (isRead, userId, createdAt) some servers send. When both
// spellings are present the snake_case one wins.
func (n *Notification) UnmarshalJSON(b []byte) error {
	type plain Notification
	var aux struct {
		plain
		Read         *bool      `json:"is_read"`
		CamelRead    *bool      `json:"isRead"`
		CamelUserID  string     `json:"userId"`
		CamelCreated *time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	*n = Notification(aux.plain)
	switch {
	case aux.Read != nil:
		n.IsRead = *aux.Read
	case aux.CamelRead != nil:
		n.IsRead = *aux.CamelRead
	}
	if n.UserID == "" {
		n.UserID = aux.CamelUserID
	}
	if n.CreatedAt.IsZero() && aux.CamelCreated != nil {
		n.CreatedAt = *aux.CamelCreated
	}
	return nil
}

// Validate checks the fields a delivered frame must carry.
func (n *Notification) Validate() error {
	if n == nil {
		return fmt.Errorf("notification: nil")
	}
	if n.ID == "" {
		return fmt.Errorf("notification: missing id")
	}
	// flat frames carry the envelope discriminator in the same "type" field
	if n.Type == "" || n.Type == "notification" {
		n.Type = TypeGeneric
	}
	return nil
}

// ParseNotification decodes and validates a notification payload.
func ParseNotification(data []byte) (*Notification, error) {
	n := new(Notification)
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}
