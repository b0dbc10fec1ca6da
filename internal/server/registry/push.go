package registry

import (
	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
)

type Priority int8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Push is one server-side delivery addressed to every session of a user.
// Exactly one of Notification and System is set.
type Push struct {
	UserID       string
	Priority     Priority
	Notification *model.Notification
	System       *event.SystemPayload
}

func NewNotificationPush(n *model.Notification) *Push {
	return &Push{UserID: n.UserID, Priority: PriorityNormal, Notification: n}
}

func NewSystemPush(userID string, p event.SystemPayload) *Push {
	return &Push{UserID: userID, Priority: PriorityLow, System: &p}
}
