package auth_test

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtpad/virtpad/internal/server/auth"
)

type handshakeResult struct {
	clientNonce []byte
	serverNonce []byte
	err         error
}

func runHandshake(t *testing.T, clientKey, serverKey []byte) (client, server handshakeResult) {
	t.Helper()

	cConn, sConn := net.Pipe()
	defer cConn.Close()
	defer sConn.Close()

	serverDone := make(chan handshakeResult, 1)
	go func() {
		r := bufio.NewReader(sConn)
		cn, sn, err := auth.HandleAuthHandshake(r, sConn, serverKey, false)
		serverDone <- handshakeResult{cn, sn, err}
	}()

	cr := bufio.NewReader(cConn)
	cn, sn, err := auth.HandleAuthHandshake(cr, cConn, clientKey, true)
	client = handshakeResult{cn, sn, err}

	select {
	case server = <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server handshake never finished")
	}
	return client, server
}

func TestHandshakeMatchingKeys(t *testing.T) {
	key, err := auth.DeriveKey("correct horse battery staple")
	require.NoError(t, err)

	client, server := runHandshake(t, key, key)
	require.NoError(t, client.err)
	require.NoError(t, server.err)

	assert.Equal(t, server.clientNonce, client.clientNonce)
	assert.Equal(t, server.serverNonce, client.serverNonce)

	clientSession := auth.DeriveSessionKey(key, client.serverNonce, client.clientNonce)
	serverSession := auth.DeriveSessionKey(key, server.serverNonce, server.clientNonce)
	assert.Equal(t, serverSession, clientSession)
}

func TestHandshakeWrongKey(t *testing.T) {
	serverKey, err := auth.DeriveKey("right")
	require.NoError(t, err)
	clientKey, err := auth.DeriveKey("wrong")
	require.NoError(t, err)

	client, server := runHandshake(t, clientKey, serverKey)
	assert.ErrorIs(t, server.err, auth.ErrUnauthorized)
	assert.ErrorIs(t, client.err, auth.ErrUnauthorized)
}

func TestHandshakeMissingKey(t *testing.T) {
	cConn, sConn := net.Pipe()
	defer cConn.Close()
	defer sConn.Close()

	_, _, err := auth.HandleAuthHandshake(bufio.NewReader(cConn), cConn, nil, true)
	assert.Error(t, err)
}

func TestIsAuthHandshake(t *testing.T) {
	cConn, sConn := net.Pipe()
	defer cConn.Close()
	defer sConn.Close()

	go func() {
		_, _ = cConn.Write([]byte(auth.HandshakeMagic))
	}()

	r := bufio.NewReader(sConn)
	ok, err := auth.IsAuthHandshake(r)
	require.NoError(t, err)
	assert.True(t, ok)

	// Peeking must not consume the magic.
	b := make([]byte, len(auth.HandshakeMagic))
	_, err = r.Read(b)
	require.NoError(t, err)
	assert.Equal(t, auth.HandshakeMagic, string(b))
}
