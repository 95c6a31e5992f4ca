package pool

import (
	"context"
	"math/rand"
	"net"
)

// UnpooledDialer implements §4.3.6: when pool_size is unset, every Take
// freshly dials the proxy with the same timeout/keepalive/nodelay
// configuration a Pool would use, and Return is a no-op. It shares Take's
// signature with Pool so call sites never special-case the degenerate
// case — directly grounded on the teacher's bare DialFast call used when
// rule.Prewarm is false.
type UnpooledDialer struct {
	cfg *Config
}

var _ Taker = (*UnpooledDialer)(nil)

// NewUnpooledDialer builds the on-demand dialer variant.
func NewUnpooledDialer(cfg *Config) *UnpooledDialer {
	return &UnpooledDialer{cfg: cfg}
}

// Take dials a fresh connection to one of the configured proxy addresses.
func (u *UnpooledDialer) Take(ctx context.Context) (*PooledConnection, error) {
	addr := u.cfg.ProxyAddresses[rand.Intn(len(u.cfg.ProxyAddresses))]
	dialCtx, cancel := context.WithTimeout(ctx, u.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	rawConn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, ErrConnectProxyTimeout
	}
	if tc, ok := rawConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		if u.cfg.TCPKeepaliveTime > 0 || u.cfg.TCPKeepaliveRetry > 0 {
			_ = tc.SetKeepAliveConfig(net.KeepAliveConfig{
				Enable:   true,
				Idle:     u.cfg.TCPKeepaliveTime,
				Interval: u.cfg.TCPKeepaliveInterval,
				Count:    u.cfg.TCPKeepaliveRetry,
			})
		} else {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(u.cfg.TCPKeepaliveInterval)
		}
		if u.cfg.SocketRecvBufferSize > 0 {
			_ = tc.SetReadBuffer(u.cfg.SocketRecvBufferSize)
		}
		if u.cfg.SocketSendBufferSize > 0 {
			_ = tc.SetWriteBuffer(u.cfg.SocketSendBufferSize)
		}
	}
	// An unpooled connection goes straight to the relay with no parking
	// interval, so no deadline is applied here (cf. Pool.applyParkingDeadlines).
	return newPooledConnection(rawConn, u.cfg), nil
}

// Return is a no-op: an unpooled connection belongs to exactly one
// session for its whole life.
func (u *UnpooledDialer) Return(*PooledConnection) {}
