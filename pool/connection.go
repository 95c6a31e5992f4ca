package pool

import (
	"net"
	"time"
)

// PooledConnection wraps a warm TCP connection to a Proxy together with
// the bookkeeping needed to decide whether it still needs a liveness
// check or has aged out entirely (§3).
type PooledConnection struct {
	Conn          net.Conn
	CreatedAt     time.Time
	LastCheckedAt time.Time

	checkInterval time.Duration
	maxLifetime   time.Duration
}

func newPooledConnection(conn net.Conn, cfg *Config) *PooledConnection {
	now := time.Now().UTC()
	return &PooledConnection{
		Conn:          conn,
		CreatedAt:     now,
		LastCheckedAt: now,
		checkInterval: cfg.CheckInterval,
		maxLifetime:   cfg.MaxLifetime,
	}
}

// NeedsCheck reports whether this connection has gone long enough without
// a heartbeat round-trip that one is due before handing it out.
func (c *PooledConnection) NeedsCheck() bool {
	return time.Since(c.LastCheckedAt) > c.checkInterval
}

// NeedsClose reports whether this connection has exceeded its hard
// lifetime and must be discarded regardless of liveness.
func (c *PooledConnection) NeedsClose() bool {
	return time.Since(c.CreatedAt) > c.maxLifetime
}

// Close releases the underlying socket.
func (c *PooledConnection) Close() error {
	return c.Conn.Close()
}
