package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtpad/virtpad/internal/server/auth"
)

func TestGenerateKey(t *testing.T) {
	k1, err := auth.GenerateKey()
	require.NoError(t, err)
	assert.Len(t, k1, auth.AutoGenKeyLength)
	for _, c := range k1 {
		assert.Contains(t, auth.Base62Chars, string(c))
	}

	k2, err := auth.GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDeriveKey(t *testing.T) {
	_, err := auth.DeriveKey("")
	assert.Error(t, err)

	k1, err := auth.DeriveKey("hunter2")
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := auth.DeriveKey("hunter2")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := auth.DeriveKey("hunter3")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestDeriveSessionKey(t *testing.T) {
	key := make([]byte, 32)
	sn := []byte{1, 2, 3}
	cn := []byte{4, 5, 6}

	s1 := auth.DeriveSessionKey(key, sn, cn)
	s2 := auth.DeriveSessionKey(key, sn, cn)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 32)

	// Nonce order matters.
	assert.NotEqual(t, s1, auth.DeriveSessionKey(key, cn, sn))
}
