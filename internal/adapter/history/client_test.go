package history

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/im-live-notify/internal/domain/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type token string

func (t token) Token(context.Context) (string, error) { return string(t), nil }

var defaultBreaker = BreakerSettings{
	MaxRequests:  1,
	Interval:     time.Minute,
	Timeout:      time.Minute,
	FailureRatio: 0.5,
	MinRequests:  3,
}

func newClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "/api/notifications", time.Second, token("tok"), defaultBreaker, discard)
	require.NoError(t, err)
	return c
}

func TestClient_List(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "c1", r.URL.Query().Get("cursor"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": 1, "message": "a", "is_read": true},
				{"message": "missing id"},
				{"id": "x", "type": "mention"},
			},
			"next_cursor": "c2",
		})
	}))

	page, err := c.List(context.Background(), "c1", 2)
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, model.ID("1"), page.Items[0].ID)
	assert.True(t, page.Items[0].IsRead)
	assert.Equal(t, model.TypeMention, page.Items[1].Type)
	assert.Equal(t, "c2", page.NextCursor)
	assert.True(t, page.HasMore())
}

func TestClient_Commands(t *testing.T) {
	var calls []string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			_, _ = io.WriteString(w, `{"deleted":4}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := context.Background()
	require.NoError(t, c.MarkRead(ctx, "42"))
	require.NoError(t, c.MarkAllRead(ctx))
	n, err := c.DeleteRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, []string{
		"POST /api/notifications/42/read",
		"POST /api/notifications/read-all",
		"DELETE /api/notifications/read",
	}, calls)
}

func TestClient_StatusErrors(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/notifications/missing/read":
			http.Error(w, "no such notification", http.StatusNotFound)
		default:
			http.Error(w, "denied", http.StatusUnauthorized)
		}
	}))

	ctx := context.Background()
	assert.ErrorIs(t, c.MarkRead(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, c.MarkAllRead(ctx), ErrUnauthorized)
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int64
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))

	ctx := context.Background()
	for range 3 {
		assert.ErrorIs(t, c.MarkAllRead(ctx), ErrServer)
	}
	assert.EqualValues(t, 3, hits.Load())

	// open: the request never leaves the client
	assert.ErrorIs(t, c.MarkAllRead(ctx), ErrServer)
	assert.EqualValues(t, 3, hits.Load())
}

func TestClient_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var hits atomic.Int64
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))

	for range 5 {
		assert.ErrorIs(t, c.MarkRead(context.Background(), "x"), ErrNotFound)
	}
	assert.EqualValues(t, 5, hits.Load())
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := New("localhost", "/api", time.Second, token(""), defaultBreaker, discard)
	assert.Error(t, err)
}
