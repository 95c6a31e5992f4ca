package controller

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func isClosed(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err := conn.Read(make([]byte, 1))
	return err != nil
}

// TestDispatchRejectsSocks4 verifies §4.4.1's first-byte sniff closes the
// connection outright on a SOCKS4 version byte rather than handing it to
// either protocol handler.
func TestDispatchRejectsSocks4(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	state := &AgentState{Logger: zap.NewNop()}
	go Dispatch(serverSide, state)

	_, err := clientSide.Write([]byte{0x04})
	assert := assert.New(t)
	assert.NoError(err)
	assert.True(isClosed(clientSide), "connection should be closed after an unsupported SOCKS4 byte")
}

// TestDispatchRejectsUnknownProtocol verifies bytes that are neither a
// SOCKS5 version byte nor a plausible HTTP method byte are rejected.
func TestDispatchRejectsUnknownProtocol(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	state := &AgentState{Logger: zap.NewNop()}
	go Dispatch(serverSide, state)

	_, err := clientSide.Write([]byte{0xFF})
	assert := assert.New(t)
	assert.NoError(err)
	assert.True(isClosed(clientSide), "connection should be closed on an unrecognized first byte")
}

// TestDispatchRoutesSocks5RequestsToHandler verifies a SOCKS5 version byte
// is routed into the handshake rather than closed or misrouted to HTTP:
// the method-selection reply must arrive. The wired Taker always fails,
// so no tunnel could be opened; no request is sent after the greeting.
func TestDispatchRoutesSocks5RequestsToHandler(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	state := &AgentState{Logger: zap.NewNop(), Taker: &erroringTaker{}}
	go Dispatch(serverSide, state)

	// VER=5, NMETHODS=1, METHODS=[no-auth]
	_, err := clientSide.Write([]byte{0x05, 0x01, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	reply := make([]byte, 2)
	clientSide.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := readFull(clientSide, reply); err != nil {
		t.Fatalf("expected a method-selection reply, got error: %v", err)
	}
	assert.Equal(t, []byte{0x05, 0x00}, reply)
}

func readFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
