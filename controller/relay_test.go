package controller

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestRelayTCPFidelity drives relayTCP directly with channel-backed
// encode/decode functions standing in for a data codec, verifying bytes
// written by the "client" arrive encoded in order and bytes "decoded"
// from the remote side arrive back at the client byte-for-byte.
func TestRelayTCPFidelity(t *testing.T) {
	clientSide, testSide := net.Pipe()

	toRemote := make(chan []byte, 16)
	fromRemote := make(chan []byte, 16)

	encode := func(b []byte) error {
		toRemote <- append([]byte(nil), b...)
		return nil
	}
	decode := func() ([]byte, error) {
		b, ok := <-fromRemote
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		relayTCP(clientSide, encode, decode, 4096, nil, zap.NewNop())
	}()

	_, err := testSide.Write([]byte("hello proxy"))
	require.NoError(t, err)
	select {
	case got := <-toRemote:
		assert.Equal(t, "hello proxy", string(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for encoded bytes")
	}

	fromRemote <- []byte("hello client")
	buf := make([]byte, 32)
	n, err := testSide.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello client", string(buf[:n]))

	close(fromRemote)
	testSide.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relayTCP did not return after both directions closed")
	}
}

// TestRelayTCPSendsInitialPayload verifies the initial bytes (used by the
// plain-HTTP forward path to resend the parsed request) are encoded
// before any bytes read from local.
func TestRelayTCPSendsInitialPayload(t *testing.T) {
	clientSide, testSide := net.Pipe()
	defer testSide.Close()

	toRemote := make(chan []byte, 16)
	encode := func(b []byte) error {
		toRemote <- append([]byte(nil), b...)
		return nil
	}
	decode := func() ([]byte, error) {
		return nil, errors.New("no more data")
	}

	go relayTCP(clientSide, encode, decode, 4096, []byte("GET / HTTP/1.1\r\n\r\n"), zap.NewNop())

	select {
	case got := <-toRemote:
		assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial payload")
	}
}
