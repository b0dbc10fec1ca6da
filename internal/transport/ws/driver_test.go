package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/transport"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type sink struct {
	mu     sync.Mutex
	events []event.Eventer
}

func (s *sink) handle(ev event.Eventer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *sink) at(i int) event.Eventer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[i]
}

// peer is the server side of one test socket.
type peer struct {
	conn     *websocket.Conn
	received chan Message
}

func (p *peer) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (p *peer) expect(t *testing.T, typ string) Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-p.received:
			if !ok {
				t.Fatalf("socket closed before %q message", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %q message from client", typ)
			return Message{}
		}
	}
}

// socketServer hands every accepted socket to the test through peers.
func socketServer(t *testing.T) (*httptest.Server, chan *peer) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	peers := make(chan *peer, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := &peer{conn: conn, received: make(chan Message, 16)}
		peers <- p

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				close(p.received)
				return
			}
			var msg Message
			if json.Unmarshal(raw, &msg) == nil {
				p.received <- msg
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, peers
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func accept(t *testing.T, peers chan *peer) *peer {
	t.Helper()
	select {
	case p := <-peers:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func TestDriver_DecodesMessages(t *testing.T) {
	srv, peers := socketServer(t)

	d := New(discard)
	var s sink
	require.NoError(t, d.Connect(context.Background(), wsURL(srv), s.handle))
	t.Cleanup(func() { _ = d.Disconnect() })

	p := accept(t, peers)
	p.send(t, `{"type":"connected","message":"welcome"}`)
	p.send(t, `{"type":"notification","data":{"id":5,"type":"mention","message":"hey"}}`)
	p.send(t, `{"type":"notification","data":{"message":"no id"}}`)
	p.send(t, `not json`)
	p.send(t, `{"type":"heartbeat","timestamp":1700000000}`)
	p.send(t, `{"type":"system","event":"maintenance","data":{"in":"5m"}}`)
	p.send(t, `{"type":"pong","timestamp":1}`)
	p.send(t, `{"type":"mystery"}`)
	p.send(t, `{"type":"error","message":"rate limited"}`)

	require.Eventually(t, func() bool { return s.len() == 5 }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "welcome", s.at(0).GetPayload().(*event.ConnectedPayload).Message)

	n := s.at(1).GetPayload().(*model.Notification)
	assert.Equal(t, model.ID("5"), n.ID)
	assert.Equal(t, model.TypeMention, n.Type)

	assert.Equal(t, time.Unix(1700000000, 0), s.at(2).GetPayload().(*event.HeartbeatPayload).At)

	sys := s.at(3).GetPayload().(*event.SystemPayload)
	assert.Equal(t, "maintenance", sys.Type)
	assert.JSONEq(t, `{"in":"5m"}`, string(sys.Data))

	assert.Equal(t, event.ServerError, s.at(4).GetKind())
	assert.Contains(t, s.at(4).GetPayload().(*event.ErrorPayload).Err.Error(), "rate limited")
}

func TestDriver_AnswersPing(t *testing.T) {
	srv, peers := socketServer(t)
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_123))

	d := New(discard, WithClock(clock))
	require.NoError(t, d.Connect(context.Background(), wsURL(srv), func(event.Eventer) {}))
	t.Cleanup(func() { _ = d.Disconnect() })

	p := accept(t, peers)
	p.send(t, `{"type":"ping","timestamp":42}`)

	pong := p.expect(t, TypePong)
	assert.Equal(t, int64(1_700_000_000_123), pong.Timestamp)
}

func TestDriver_KeepAlivePing(t *testing.T) {
	srv, peers := socketServer(t)
	clock := clockwork.NewFakeClock()

	d := New(discard, WithClock(clock), WithPingInterval(10*time.Second))
	require.NoError(t, d.Connect(context.Background(), wsURL(srv), func(event.Eventer) {}))
	t.Cleanup(func() { _ = d.Disconnect() })

	p := accept(t, peers)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(10 * time.Second)
	ping := p.expect(t, TypePing)
	assert.Equal(t, clock.Now().UnixMilli(), ping.Timestamp)
}

func TestDriver_CloseCodes(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		normal bool
	}{
		{"normal", websocket.CloseNormalClosure, true},
		{"going away", websocket.CloseGoingAway, false},
		{"policy", websocket.ClosePolicyViolation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, peers := socketServer(t)

			d := New(discard)
			var s sink
			require.NoError(t, d.Connect(context.Background(), wsURL(srv), s.handle))

			p := accept(t, peers)
			msg := websocket.FormatCloseMessage(tt.code, "bye")
			require.NoError(t, p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

			require.Eventually(t, func() bool { return s.len() == 1 }, 2*time.Second, 5*time.Millisecond)
			closed := s.at(0).GetPayload().(*event.ClosedPayload)
			assert.Equal(t, tt.code, closed.Code)
			assert.Equal(t, tt.normal, closed.Normal)

			require.NoError(t, d.Disconnect())
		})
	}
}

func TestDriver_DisconnectSendsNormalClose(t *testing.T) {
	srv, peers := socketServer(t)

	d := New(discard)
	var s sink
	require.NoError(t, d.Connect(context.Background(), wsURL(srv), s.handle))

	p := accept(t, peers)
	require.NoError(t, d.Disconnect())

	// the server read loop ends once the close frame arrives
	select {
	case _, ok := <-p.received:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe close")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, s.len())
}

func TestDriver_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	d := New(discard)
	err := d.Connect(context.Background(), wsURL(srv), func(event.Eventer) {})
	assert.ErrorIs(t, err, transport.ErrBadStatus)
	assert.NoError(t, d.Disconnect())
}

func TestDriver_Policy(t *testing.T) {
	d := New(discard, WithMaxAttempts(3))
	assert.Equal(t, transport.KindWS, d.Kind())
	assert.Equal(t, transport.Policy{MaxAttempts: 3, RequireToken: true}, d.Policy())

	assert.Equal(t, DefaultMaxAttempts, New(discard, WithMaxAttempts(0)).Policy().MaxAttempts)
}
