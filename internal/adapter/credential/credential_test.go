package credential

import (
	"context"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_RoundTrip(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring(nil), "access_token")
	ctx := context.Background()

	token, err := k.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token, "missing key is not an error")

	require.NoError(t, k.Save("abc\n"))
	token, err = k.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, k.Clear())
	require.NoError(t, k.Clear())
	token, err = k.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestStatic(t *testing.T) {
	s := NewStatic(" tok ")
	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	require.NoError(t, s.Clear())
	token, _ = s.Token(context.Background())
	assert.Empty(t, token)
}
