package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T, clock clockwork.Clock) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator("s3cret", WithTTL(time.Hour), WithClock(clock))
	require.NoError(t, err)
	return a
}

func TestAuthenticator_IssueVerify(t *testing.T) {
	a := newAuth(t, clockwork.NewRealClock())

	token, err := a.Issue("u1")
	require.NoError(t, err)

	userID, err := a.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// cached
	userID, err = a.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a := newAuth(t, clockwork.NewRealClock())
	other, err := NewAuthenticator("another")
	require.NoError(t, err)

	foreign, err := other.Issue("u1")
	require.NoError(t, err)

	_, err = a.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = a.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Verify(context.Background(), foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Issue(" ")
	assert.Error(t, err)
}

func TestAuthenticator_ExpiredCachedToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	a := newAuth(t, clock)

	token, err := a.Issue("u1")
	require.NoError(t, err)
	_, err = a.Verify(context.Background(), token)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = a.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	a := newAuth(t, clockwork.NewRealClock())
	token, err := a.Issue("u7")
	require.NoError(t, err)

	v := NewVerifierMiddleware(a, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(r.Context())
		assert.True(t, ok)
		_, _ = io.WriteString(w, id)
	}))

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/stream?token="+token, nil)
		}, http.StatusOK},
		{"bearer", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}, http.StatusOK},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api", nil)
		}, http.StatusUnauthorized},
		{"invalid", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api?token=nope", nil)
		}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u7", rec.Body.String())
			}
		})
	}
}
