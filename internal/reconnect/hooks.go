package reconnect

import (
	"time"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
)

// Hooks are the consumer-facing callbacks. Every field is optional. Hooks run
// on the controller loop in event order, so they must not block and must not
// call Disable or Close synchronously.
type Hooks struct {
	OnStatusChange func(from, to model.ConnectionStatus)
	OnConnected    func(p event.ConnectedPayload)
	OnNotification func(n *model.Notification)
	OnHeartbeat    func(at time.Time)
	OnSystem       func(p event.SystemPayload)
	OnError        func(err error)
	OnDisconnected func()
	// OnStale fires once per stale episode.
	OnStale func(lastHeartbeat time.Time)
	// OnRetryScheduled reports every backoff decision.
	OnRetryScheduled func(attempt int, delay time.Duration)
}

func (h *Hooks) statusChange(from, to model.ConnectionStatus) {
	if h.OnStatusChange != nil {
		h.OnStatusChange(from, to)
	}
}

func (h *Hooks) connected(p event.ConnectedPayload) {
	if h.OnConnected != nil {
		h.OnConnected(p)
	}
}

func (h *Hooks) notification(n *model.Notification) {
	if h.OnNotification != nil {
		h.OnNotification(n)
	}
}

func (h *Hooks) heartbeat(at time.Time) {
	if h.OnHeartbeat != nil {
		h.OnHeartbeat(at)
	}
}

func (h *Hooks) system(p event.SystemPayload) {
	if h.OnSystem != nil {
		h.OnSystem(p)
	}
}

func (h *Hooks) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h *Hooks) disconnected() {
	if h.OnDisconnected != nil {
		h.OnDisconnected()
	}
}

func (h *Hooks) stale(last time.Time) {
	if h.OnStale != nil {
		h.OnStale(last)
	}
}

func (h *Hooks) retryScheduled(attempt int, delay time.Duration) {
	if h.OnRetryScheduled != nil {
		h.OnRetryScheduled(attempt, delay)
	}
}
