package sse

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_DecoderReadsItBack(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Comment("keep-alive"))
	require.NoError(t, enc.Encode(Frame{ID: "7", Event: FrameNotification, Data: "{\"a\":1}\n{\"b\":2}"}))
	require.NoError(t, enc.Encode(Frame{Event: FrameHeartbeat, Data: `{"timestamp":1}`}))

	assert.Contains(t, buf.String(), "data: {\"a\":1}\ndata: {\"b\":2}\n\n")

	dec := NewDecoder(&buf)
	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Frame{ID: "7", Event: FrameNotification, Data: "{\"a\":1}\n{\"b\":2}"}, f)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameHeartbeat, f.Event)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}
