package sse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/transport"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// sink collects events delivered by the read pump.
type sink struct {
	mu     sync.Mutex
	events []event.Eventer
}

func (s *sink) handle(ev event.Eventer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sink) kinds() []event.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Kind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.GetKind())
	}
	return out
}

func (s *sink) at(i int) event.Eventer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[i]
}

// streamServer writes the given frames, then either holds the stream open
// until the client leaves or ends it.
func streamServer(t *testing.T, frames []string, hold bool) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, f := range frames {
			_, _ = fmt.Fprint(w, f)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDriver_DecodesFrames(t *testing.T) {
	srv := streamServer(t, []string{
		"event: connected\ndata: {\"message\":\"welcome\",\"connection_id\":\"c1\"}\n\n",
		"event: notification\ndata: {\"id\":1,\"type\":\"mention\",\"is_read\":false,\"message\":\"hi\",\"target\":{\"kind\":\"post\",\"id\":\"42\"}}\n\n",
		"event: notification\ndata: {broken\n\n",
		"event: heartbeat\ndata: {\"timestamp\":1700000000}\n\n",
		"event: heartbeat\ndata: {}\n\n",
		"data: {\"type\":\"notification\",\"id\":\"abc\",\"message\":\"flat\"}\n\n",
		"event: error\ndata: overloaded\n\n",
	}, true)

	d := New(discard)
	var s sink
	require.NoError(t, d.Connect(context.Background(), srv.URL, s.handle))

	want := []event.Kind{
		event.Connected,
		event.NotificationReceived,
		event.HeartbeatReceived,
		event.NotificationReceived,
		event.ServerError,
	}
	require.Eventually(t, func() bool { return len(s.kinds()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, s.kinds())

	connected := s.at(0).GetPayload().(*event.ConnectedPayload)
	assert.Equal(t, "welcome", connected.Message)
	assert.Equal(t, "c1", connected.ConnectionID)

	n := s.at(1).GetPayload().(*model.Notification)
	assert.Equal(t, model.ID("1"), n.ID)
	assert.Equal(t, model.TypeMention, n.Type)
	assert.Equal(t, model.Target{Kind: model.TargetPost, ID: "42"}, n.Target)

	hb := s.at(2).GetPayload().(*event.HeartbeatPayload)
	assert.Equal(t, time.Unix(1700000000, 0), hb.At)

	flat := s.at(3).GetPayload().(*model.Notification)
	assert.Equal(t, model.ID("abc"), flat.ID)
	assert.Equal(t, model.TypeGeneric, flat.Type)

	require.NoError(t, d.Disconnect())
}

func TestDriver_ServerEndEmitsClosed(t *testing.T) {
	srv := streamServer(t, []string{"event: connected\ndata: {}\n\n"}, false)

	d := New(discard)
	var s sink
	require.NoError(t, d.Connect(context.Background(), srv.URL, s.handle))

	require.Eventually(t, func() bool { return len(s.kinds()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, event.Closed, s.kinds()[1])
	assert.False(t, s.at(1).GetPayload().(*event.ClosedPayload).Normal)
}

func TestDriver_DisconnectIsSilent(t *testing.T) {
	srv := streamServer(t, []string{"event: connected\ndata: {}\n\n"}, true)

	d := New(discard)
	var s sink
	require.NoError(t, d.Connect(context.Background(), srv.URL, s.handle))
	require.Eventually(t, func() bool { return len(s.kinds()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.Disconnect())
	require.NoError(t, d.Disconnect())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []event.Kind{event.Connected}, s.kinds())
}

func TestDriver_DisconnectWithoutConnect(t *testing.T) {
	assert.NoError(t, New(discard).Disconnect())
}

func TestDriver_ConnectReplacesPrevious(t *testing.T) {
	var (
		mu     sync.Mutex
		active int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		active++
		mu.Unlock()
		defer func() {
			mu.Lock()
			active--
			mu.Unlock()
		}()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	d := New(discard)
	var first, second sink
	require.NoError(t, d.Connect(context.Background(), srv.URL, first.handle))
	require.NoError(t, d.Connect(context.Background(), srv.URL, second.handle))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return active == 1
	}, 2*time.Second, 5*time.Millisecond)

	// the replaced stream ends silently
	assert.Empty(t, first.kinds())
	require.NoError(t, d.Disconnect())
}

func TestDriver_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	d := New(discard)
	err := d.Connect(context.Background(), srv.URL, func(event.Eventer) {})
	assert.ErrorIs(t, err, transport.ErrBadStatus)
	assert.NoError(t, d.Disconnect())
}

func TestDriver_Policy(t *testing.T) {
	d := New(discard)
	assert.Equal(t, transport.KindSSE, d.Kind())
	assert.Equal(t, transport.Policy{}, d.Policy())
}
