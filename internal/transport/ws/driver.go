// Package ws implements the bidirectional socket transport driver.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/transport"
)

// Interface guard
var _ transport.Driver = (*Driver)(nil)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultMaxAttempts  = 5
)

// Driver owns at most one open socket and keeps it alive with
// application-level ping frames.
type Driver struct {
	dialer       *websocket.Dialer
	logger       *slog.Logger
	clock        clockwork.Clock
	pingInterval time.Duration
	writeTimeout time.Duration
	maxAttempts  int

	mu  sync.Mutex
	cur *socket
}

// socket is one physical connection.
type socket struct {
	conn    *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex
	closing atomic.Bool
	done    chan struct{} // closed when the read pump exits
}

func New(logger *slog.Logger, opts ...Option) *Driver {
	d := &Driver{
		dialer:       &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger:       logger.With(slog.String("transport", string(transport.KindWS))),
		clock:        clockwork.NewRealClock(),
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Kind() transport.Kind { return transport.KindWS }

// Policy: the socket gives up after maxAttempts and refuses to dial without a token.
func (d *Driver) Policy() transport.Policy {
	return transport.Policy{MaxAttempts: d.maxAttempts, RequireToken: true}
}

func (d *Driver) Connect(ctx context.Context, endpoint string, h transport.Handler) error {
	sctx, cancel := context.WithCancel(ctx)
	s := &socket{cancel: cancel, done: make(chan struct{})}

	// [SINGLE_CONNECTION]
	d.mu.Lock()
	prev := d.cur
	d.cur = s
	d.mu.Unlock()
	d.release(prev)

	conn, resp, err := d.dialer.DialContext(sctx, endpoint, nil)
	if err != nil {
		d.abandon(s)
		if resp != nil {
			return fmt.Errorf("ws: dial: %w (%w: %s)", err, transport.ErrBadStatus, resp.Status)
		}
		return fmt.Errorf("ws: dial: %w", err)
	}

	d.mu.Lock()
	if d.cur != s {
		d.mu.Unlock()
		_ = conn.Close()
		cancel()
		close(s.done)
		return context.Canceled
	}
	s.conn = conn
	d.mu.Unlock()

	d.logger.Debug("[WS] socket opened")

	go d.pump(sctx, s, h)
	go d.keepAlive(sctx, s)
	return nil
}

func (d *Driver) Disconnect() error {
	d.mu.Lock()
	s := d.cur
	d.cur = nil
	d.mu.Unlock()

	if s == nil {
		return nil
	}
	d.release(s)
	<-s.done
	d.logger.Debug("[WS] socket closed by owner")
	return nil
}

// release stops keep-alive and closes the socket with a normal close frame.
func (d *Driver) release(s *socket) {
	if s == nil {
		return
	}
	s.closing.Store(true)
	s.cancel()

	d.mu.Lock()
	conn := s.conn
	d.mu.Unlock()
	if conn == nil {
		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(d.writeTimeout))
	_ = conn.Close()
}

func (d *Driver) abandon(s *socket) {
	d.mu.Lock()
	if d.cur == s {
		d.cur = nil
	}
	d.mu.Unlock()
	s.cancel()
	close(s.done)
}

// keepAlive sends a ping frame on every interval while the socket is open.
func (d *Driver) keepAlive(ctx context.Context, s *socket) {
	ticker := d.clock.NewTicker(d.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := d.write(s, newPing(d.clock.Now())); err != nil {
				d.logger.Debug("[WS] keep-alive ping failed", slog.Any("err", err))
			}
		}
	}
}

func (d *Driver) pump(ctx context.Context, s *socket, h transport.Handler) {
	defer close(s.done)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			// [INTENTIONAL_TEARDOWN]
			if ctx.Err() != nil || s.closing.Load() {
				return
			}

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				h(event.NewClosed(event.ClosedPayload{
					Code:   ce.Code,
					Reason: ce.Text,
					Normal: ce.Code == websocket.CloseNormalClosure,
				}))
				return
			}
			h(event.NewTransportError(fmt.Errorf("ws: read: %w", err)))
			return
		}

		if ev := d.decode(s, raw); ev != nil {
			h(ev)
		}
	}
}

// decode maps one socket message to a domain event. Ping is answered inline
// and produces no event.
func (d *Driver) decode(s *socket, raw []byte) event.Eventer {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.logger.Warn("[WS] malformed message dropped", slog.Any("err", err))
		return nil
	}

	switch msg.Type {
	case TypeConnected:
		var p event.ConnectedPayload
		if err := json.Unmarshal(msg.body(raw), &p); err != nil || p.Message == "" {
			p.Message = msg.Message
		}
		return event.NewConnected(p)

	case TypeNotification:
		n, err := model.ParseNotification(msg.body(raw))
		if err != nil {
			d.logger.Warn("[WS] malformed notification dropped", slog.Any("err", err))
			return nil
		}
		return event.NewNotification(n)

	case TypeHeartbeat:
		at, err := event.ParseHeartbeat(msg.body(raw))
		if err != nil {
			d.logger.Warn("[WS] malformed heartbeat ignored", slog.Any("err", err))
			return nil
		}
		return event.NewHeartbeat(at)

	case TypePing:
		if err := d.write(s, newPong(d.clock.Now())); err != nil {
			d.logger.Debug("[WS] pong failed", slog.Any("err", err))
		}
		return nil

	case TypePong:
		d.logger.Debug("[WS] pong received", slog.Int64("timestamp", msg.Timestamp))
		return nil

	case TypeSystem:
		return event.NewSystem(event.SystemPayload{Type: msg.Event, Data: msg.Data})

	case TypeError:
		text := msg.Message
		if text == "" {
			text = string(msg.Data)
		}
		return event.NewServerError(fmt.Errorf("ws: server error: %s", text))
	}

	d.logger.Warn("[WS] unrecognized message type ignored", slog.String("type", msg.Type))
	return nil
}

// write serializes writers; gorilla allows one concurrent writer per socket.
func (d *Driver) write(s *socket, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ws: marshal %s: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closing.Load() {
		return transport.ErrNotConnected
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
