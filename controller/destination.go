package controller

import (
	"context"
	"net"
	"time"

	"github.com/cppla/tunnelmoto/netutil"
)

// dialTCPDestination implements the TCP half of the Proxy-side §4.5.2
// dial: adapted verbatim from the teacher's controller/direct.go
// parallel-IP racing dial (now netutil.DialFast).
func dialTCPDestination(ctx context.Context, addr string, keepalive bool, connectTimeout time.Duration) (net.Conn, error) {
	conn, err := netutil.DialFast(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	if keepalive {
		if tc, ok := netutil.Unwrap(conn).(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
		}
	}
	return conn, nil
}
