package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		path  string
		token string
		kind  Kind
		want  string
	}{
		{"stream with token", "http://api.local:8080", "/api/notifications/stream", "abc", KindSSE, "http://api.local:8080/api/notifications/stream?token=abc"},
		{"stream without token", "https://api.local/", "api/notifications/stream", "", KindSSE, "https://api.local/api/notifications/stream"},
		{"socket over http", "http://api.local", "/ws", "t 1", KindWS, "ws://api.local/ws?token=t+1"},
		{"socket over https", "https://api.local/v1", "/ws", "x", KindWS, "wss://api.local/v1/ws?token=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(tt.base, tt.path, tt.token, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildURL_RejectsRelativeBase(t *testing.T) {
	_, err := BuildURL("/api", "/stream", "", KindSSE)
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" WebSocket ")
	require.NoError(t, err)
	assert.Equal(t, KindWS, k)

	k, err = ParseKind("sse")
	require.NoError(t, err)
	assert.Equal(t, KindSSE, k)

	_, err = ParseKind("carrier-pigeon")
	assert.Error(t, err)
}
