package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Next(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive comment",
		"",
		"event: connected",
		`data: {"message":"hi"}`,
		"",
		"id: 7",
		"event: notification",
		`data: {"id":1,`,
		`data: "message":"two lines"}`,
		"retry: 3000",
		"",
		"event: empty",
		"",
		`data: {"type":"heartbeat","timestamp":1}`,
		"",
		"event: trailing",
		"data: never dispatched",
	}, "\r\n")

	dec := NewDecoder(strings.NewReader(stream))

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Frame{Event: "connected", Data: `{"message":"hi"}`}, f)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "7", f.ID)
	assert.Equal(t, "notification", f.Event)
	assert.Equal(t, "{\"id\":1,\n\"message\":\"two lines\"}", f.Data)
	assert.Equal(t, "3000", f.Retry)

	// the data-less "empty" frame is skipped
	f, err = dec.Next()
	require.NoError(t, err)
	assert.Empty(t, f.Event)
	assert.Equal(t, `{"type":"heartbeat","timestamp":1}`, f.Data)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPeekType(t *testing.T) {
	assert.Equal(t, "heartbeat", peekType(`{"type":"heartbeat"}`))
	assert.Empty(t, peekType(`not json`))
	assert.Empty(t, peekType(`{"id":1}`))
}
