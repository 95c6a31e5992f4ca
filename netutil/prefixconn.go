// Package netutil holds small net.Conn helpers shared by the pool and
// controller packages.
package netutil

import (
	"bytes"
	"io"
	"net"
)

// PrefixConn replays a prefix of already-read bytes before falling through
// to the wrapped connection's own reads. It lets a codec be unwrapped
// mid-stream (§4.3.4, §4.5.1) without losing bytes the peer already sent
// that were buffered but not yet consumed.
type PrefixConn struct {
	net.Conn
	prefix *bytes.Reader
}

// NewPrefixConn returns conn with prefix replayed first, if non-empty.
func NewPrefixConn(conn net.Conn, prefix []byte) net.Conn {
	if len(prefix) == 0 {
		return conn
	}
	return &PrefixConn{Conn: conn, prefix: bytes.NewReader(prefix)}
}

func (p *PrefixConn) Read(b []byte) (int, error) {
	if p.prefix.Len() > 0 {
		n, err := p.prefix.Read(b)
		if err == io.EOF {
			err = nil
		}
		return n, err
	}
	return p.Conn.Read(b)
}
