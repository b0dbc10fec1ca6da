// Package transport defines the capability shared by every physical channel
// driver. The reconnection controller consumes drivers only through Driver,
// so the push-stream and socket variants are interchangeable.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/webitel/im-live-notify/internal/domain/event"
)

type Kind string

const (
	KindSSE Kind = "sse" // unidirectional push stream
	KindWS  Kind = "ws"  // bidirectional socket
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSSE, "push", "stream":
		return KindSSE, nil
	case KindWS, "socket", "websocket":
		return KindWS, nil
	}
	return "", fmt.Errorf("transport: unknown kind %q", s)
}

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrUnsupported  = errors.New("transport: operation not supported")
	ErrBadStatus    = errors.New("transport: unexpected response status")
)

// Policy is the per-transport retry-exhaustion policy. The two variants differ
// on purpose: the push stream retries forever, the socket gives up.
type Policy struct {
	// MaxAttempts caps consecutive failed attempts; 0 means unlimited.
	MaxAttempts int
	// RequireToken turns a missing access token into a terminal error.
	RequireToken bool
}

// Handler receives decoded frames of one physical connection in receive order.
type Handler func(ev event.Eventer)

// Driver opens and owns exactly one physical connection at a time.
type Driver interface {
	Kind() Kind
	Policy() Policy
	// Connect closes any existing connection, opens a new one against endpoint
	// and starts delivering its frames to h. It returns once the connection is
	// open or has failed to open. A connection ended by Disconnect emits nothing.
	Connect(ctx context.Context, endpoint string, h Handler) error
	// Disconnect closes the current connection, if any. Idempotent.
	Disconnect() error
}

// BuildURL appends path to the API base and the token as a query parameter.
// Socket endpoints get the ws/wss scheme.
func BuildURL(apiBase, path, token string, kind Kind) (string, error) {
	base, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil {
		return "", fmt.Errorf("transport: parse api base: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("transport: api base %q must be absolute", apiBase)
	}

	u := base.JoinPath(path)

	if kind == KindWS {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
	}

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
