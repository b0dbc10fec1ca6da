// Package sse implements the push-stream transport driver over a long-lived
// text/event-stream HTTP response.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/transport"
)

// Interface guard
var _ transport.Driver = (*Driver)(nil)

const (
	FrameConnected    = "connected"
	FrameNotification = "notification"
	FrameHeartbeat    = "heartbeat"
	FrameError        = "error"
)

type Option func(*Driver)

// WithHTTPClient replaces the client used to open the stream. It must not set
// an overall Timeout, the response body is read for the life of the stream.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.client = c }
}

// Driver owns at most one open stream.
type Driver struct {
	client *http.Client
	logger *slog.Logger

	mu  sync.Mutex
	cur *stream
}

// stream is one physical connection.
type stream struct {
	cancel context.CancelFunc
	body   io.Closer
	done   chan struct{}
}

func New(logger *slog.Logger, opts ...Option) *Driver {
	d := &Driver{
		client: &http.Client{},
		logger: logger.With(slog.String("transport", string(transport.KindSSE))),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Kind() transport.Kind { return transport.KindSSE }

// Policy: the push stream retries indefinitely and tolerates a missing token.
func (d *Driver) Policy() transport.Policy { return transport.Policy{} }

func (d *Driver) Connect(ctx context.Context, endpoint string, h transport.Handler) error {
	sctx, cancel := context.WithCancel(ctx)
	s := &stream{cancel: cancel, done: make(chan struct{})}

	// [SINGLE_CONNECTION] The previous stream is released before a new one is opened.
	d.mu.Lock()
	d.releaseLocked()
	d.cur = s
	d.mu.Unlock()

	req, err := http.NewRequestWithContext(sctx, http.MethodGet, endpoint, nil)
	if err != nil {
		d.abandon(s)
		return fmt.Errorf("sse: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		d.abandon(s)
		return fmt.Errorf("sse: open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		d.abandon(s)
		return fmt.Errorf("%w: %s", transport.ErrBadStatus, resp.Status)
	}

	d.mu.Lock()
	if d.cur != s {
		// Disconnect or a newer Connect won the race while the request was in flight.
		d.mu.Unlock()
		_ = resp.Body.Close()
		close(s.done)
		return context.Canceled
	}
	s.body = resp.Body
	d.mu.Unlock()

	d.logger.Debug("[SSE] stream opened", slog.String("status", resp.Status))

	go d.pump(sctx, s, resp.Body, h)
	return nil
}

func (d *Driver) Disconnect() error {
	d.mu.Lock()
	s := d.cur
	d.releaseLocked()
	d.mu.Unlock()

	if s != nil {
		<-s.done
		d.logger.Debug("[SSE] stream closed by owner")
	}
	return nil
}

// releaseLocked cancels the current stream without waiting for its pump.
func (d *Driver) releaseLocked() {
	if d.cur == nil {
		return
	}
	d.cur.cancel()
	if d.cur.body != nil {
		_ = d.cur.body.Close()
	}
	d.cur = nil
}

// abandon drops a stream that never reached the pump.
func (d *Driver) abandon(s *stream) {
	d.mu.Lock()
	if d.cur == s {
		d.cur = nil
	}
	d.mu.Unlock()
	s.cancel()
	close(s.done)
}

func (d *Driver) pump(ctx context.Context, s *stream, body io.ReadCloser, h transport.Handler) {
	defer close(s.done)
	defer body.Close()

	dec := NewDecoder(body)
	for {
		f, err := dec.Next()
		if err != nil {
			// [INTENTIONAL_TEARDOWN] Nothing is emitted for a stream the owner closed.
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				h(event.NewClosed(event.ClosedPayload{Reason: "stream ended by server"}))
				return
			}
			h(event.NewTransportError(fmt.Errorf("sse: read stream: %w", err)))
			return
		}

		if ctx.Err() != nil {
			return
		}

		if ev := d.decode(f); ev != nil {
			h(ev)
		}
	}
}

// decode maps one frame to a domain event. Malformed frames are logged and
// dropped, they never end the stream.
func (d *Driver) decode(f Frame) event.Eventer {
	name := f.Event
	if name == "" || name == "message" {
		name = peekType(f.Data)
	}

	switch name {
	case FrameConnected:
		var p event.ConnectedPayload
		if err := json.Unmarshal([]byte(f.Data), &p); err != nil {
			p.Message = f.Data
		}
		return event.NewConnected(p)

	case FrameNotification:
		n, err := model.ParseNotification([]byte(f.Data))
		if err != nil {
			d.logger.Warn("[SSE] malformed notification frame dropped",
				slog.String("frame_id", f.ID),
				slog.Any("err", err),
			)
			return nil
		}
		return event.NewNotification(n)

	case FrameHeartbeat:
		at, err := event.ParseHeartbeat([]byte(f.Data))
		if err != nil {
			d.logger.Warn("[SSE] malformed heartbeat frame ignored", slog.Any("err", err))
			return nil
		}
		return event.NewHeartbeat(at)

	case FrameError:
		return event.NewServerError(fmt.Errorf("sse: server error: %s", f.Data))
	}

	d.logger.Debug("[SSE] unrecognized frame ignored", slog.String("event", f.Event))
	return nil
}

// peekType reads the "type" discriminator of an unnamed JSON frame.
func peekType(data string) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return ""
	}
	return probe.Type
}
