package event

import (
	"encoding/json"
	"time"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

type Kind int16

const (
	Connected            Kind = iota + 1 // [SYSTEM]
	NotificationReceived                 // [BUSINESS]
	HeartbeatReceived                    // [LIVENESS]
	SystemMessage                        // [SYSTEM] socket only
	ServerError                          // [SYSTEM] server-reported, non-fatal
	TransportError                       // [FAILURE]
	Closed                               // [FAILURE] physical connection ended
)

var kindNames = map[Kind]string{
	Connected:            "connected",
	NotificationReceived: "notification",
	HeartbeatReceived:    "heartbeat",
	SystemMessage:        "system",
	ServerError:          "server_error",
	TransportError:       "transport_error",
	Closed:               "closed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Eventer is the contract for every typed event a transport driver emits.
type Eventer interface {
	GetKind() Kind
	GetReceivedAt() time.Time
	GetPayload() any
}

// [GUARD]
var _ Eventer = (*Event)(nil)

// Event is the envelope delivered from a driver's read pump.
type Event struct {
	kind       Kind
	receivedAt time.Time
	payload    any
}

func (e *Event) GetKind() Kind            { return e.kind }
func (e *Event) GetReceivedAt() time.Time { return e.receivedAt }
func (e *Event) GetPayload() any          { return e.payload }

// ConnectedPayload is the server's connection acknowledgement.
type ConnectedPayload struct {
	Message      string `json:"message"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// HeartbeatPayload carries the server timestamp of a liveness signal.
type HeartbeatPayload struct {
	At time.Time
}

// SystemPayload is an arbitrary typed message for the system handler.
type SystemPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload wraps a failure; Err is never nil.
type ErrorPayload struct {
	Err error
}

// ClosedPayload describes the end of a physical connection. Normal is true
// only for an intentional close by the peer (socket close code 1000).
type ClosedPayload struct {
	Code   int
	Reason string
	Normal bool
}

func NewConnected(p ConnectedPayload) *Event {
	return newEvent(Connected, &p)
}

func NewNotification(n *model.Notification) *Event {
	return newEvent(NotificationReceived, n)
}

func NewHeartbeat(at time.Time) *Event {
	return newEvent(HeartbeatReceived, &HeartbeatPayload{At: at})
}

func NewSystem(p SystemPayload) *Event {
	return newEvent(SystemMessage, &p)
}

func NewServerError(err error) *Event {
	return newEvent(ServerError, &ErrorPayload{Err: err})
}

func NewTransportError(err error) *Event {
	return newEvent(TransportError, &ErrorPayload{Err: err})
}

func NewClosed(p ClosedPayload) *Event {
	return newEvent(Closed, &p)
}

func newEvent(kind Kind, payload any) *Event {
	return &Event{
		kind:       kind,
		receivedAt: time.Now(),
		payload:    payload,
	}
}
