package controller

import (
	"bufio"
	"net"
	"time"

	"go.uber.org/zap"
)

// bufferedConn lets a handler peek bytes via a bufio.Reader without
// losing them once it starts reading the connection for real: Read goes
// through the same reader the peek used.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// isHTTPMethodByte reports whether b can start an HTTP request line
// (§4.4.1's `G H P D C O T`, case-insensitive).
func isHTTPMethodByte(b byte) bool {
	switch b {
	case 'G', 'g', 'H', 'h', 'P', 'p', 'D', 'd', 'C', 'c', 'O', 'o', 'T', 't':
		return true
	default:
		return false
	}
}

// ListenAgent runs the Agent's accept loop: one goroutine dispatches
// each accepted client connection, adapted from the teacher's
// controller/server.go Listen, generalized from rule-based mode
// selection to protocol-sniffing dispatch (§4.4.1). The accept loop
// never dies on a per-connection error (§7).
func ListenAgent(addr string, state *AgentState) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	state.Logger.Info("agent listening", zap.String("addr", addr))
	for {
		conn, err := ln.Accept()
		if err != nil {
			state.Logger.Error("agent accept failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		go Dispatch(conn, state)
	}
}

// Dispatch implements §4.4.1: peek one byte without consuming it and
// route to the SOCKS5 or HTTP handler.
func Dispatch(conn net.Conn, state *AgentState) {
	defer func() {
		if r := recover(); r != nil {
			state.Logger.Error("recovered in dispatch", zap.Any("panic", r))
			conn.Close()
		}
	}()

	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		conn.Close()
		return
	}
	wrapped := &bufferedConn{Conn: conn, r: br}

	switch {
	case first[0] == 0x05:
		handleSOCKS5(wrapped, state)
	case first[0] == 0x04:
		state.Logger.Debug("rejecting client", zap.Error(ErrUnsupportedSocks4))
		conn.Close()
	case isHTTPMethodByte(first[0]):
		handleHTTP(wrapped, state)
	default:
		state.Logger.Debug("rejecting client", zap.Error(ErrUnknownClientProtocol))
		conn.Close()
	}
}
