// Package marshaller renders server pushes in the wire format of each live
// transport.
package marshaller

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/server/registry"
	"github.com/webitel/im-live-notify/internal/transport/sse"
	"github.com/webitel/im-live-notify/internal/transport/ws"
)

var ErrEmptyPush = errors.New("marshaller: push without payload")

const ConnectedMessage = "Connected to notification stream"

func connected(connID string) event.ConnectedPayload {
	return event.ConnectedPayload{Message: ConnectedMessage, ConnectionID: connID}
}

// heartbeat bodies carry epoch seconds with sub-second precision
func heartbeat(now time.Time) ([]byte, error) {
	return json.Marshal(map[string]float64{
		"timestamp": float64(now.UnixNano()) / float64(time.Second),
	})
}

// --- push stream ---

func StreamConnected(connID string) (sse.Frame, error) {
	data, err := json.Marshal(connected(connID))
	if err != nil {
		return sse.Frame{}, err
	}
	return sse.Frame{Event: sse.FrameConnected, Data: string(data)}, nil
}

func StreamHeartbeat(now time.Time) (sse.Frame, error) {
	data, err := heartbeat(now)
	if err != nil {
		return sse.Frame{}, err
	}
	return sse.Frame{Event: sse.FrameHeartbeat, Data: string(data)}, nil
}

// StreamPush renders a notification push. The stream has no system channel,
// so system pushes report ok=false.
func StreamPush(p *registry.Push) (sse.Frame, bool, error) {
	if p.Notification == nil {
		if p.System == nil {
			return sse.Frame{}, false, ErrEmptyPush
		}
		return sse.Frame{}, false, nil
	}

	data, err := json.Marshal(p.Notification)
	if err != nil {
		return sse.Frame{}, false, fmt.Errorf("marshaller: notification %s: %w", p.Notification.ID, err)
	}
	return sse.Frame{
		ID:    p.Notification.ID.String(),
		Event: sse.FrameNotification,
		Data:  string(data),
	}, true, nil
}

// --- socket ---

func SocketConnected(connID string) (ws.Message, error) {
	data, err := json.Marshal(connected(connID))
	if err != nil {
		return ws.Message{}, err
	}
	return ws.Message{Type: ws.TypeConnected, Data: data}, nil
}

func SocketHeartbeat(now time.Time) (ws.Message, error) {
	data, err := heartbeat(now)
	if err != nil {
		return ws.Message{}, err
	}
	return ws.Message{Type: ws.TypeHeartbeat, Data: data}, nil
}

func SocketPing(now time.Time) ws.Message {
	return ws.Message{Type: ws.TypePing, Timestamp: now.UnixMilli()}
}

func SocketPong(now time.Time) ws.Message {
	return ws.Message{Type: ws.TypePong, Timestamp: now.UnixMilli()}
}

func SocketError(text string) ws.Message {
	return ws.Message{Type: ws.TypeError, Message: text}
}

func SocketPush(p *registry.Push) (ws.Message, error) {
	switch {
	case p.Notification != nil:
		data, err := json.Marshal(p.Notification)
		if err != nil {
			return ws.Message{}, fmt.Errorf("marshaller: notification %s: %w", p.Notification.ID, err)
		}
		return ws.Message{Type: ws.TypeNotification, Data: data}, nil

	case p.System != nil:
		return ws.Message{Type: ws.TypeSystem, Event: p.System.Type, Data: p.System.Data}, nil
	}
	return ws.Message{}, ErrEmptyPush
}
