// Package pool implements the Agent-side proxy-connection pool (§4.3): a
// bounded queue of warm, heartbeat-validated TCP connections to a Proxy,
// refilled and checked by background tasks, plus the unpooled on-demand
// dialer variant used when pooling is disabled.
//
// This generalizes the teacher's controller/prewarm.go, which kept one
// idle-connection slice per destination address with an ad-hoc "warming"
// counter; Pool keeps the same dial/keepalive/backoff shape but folds it
// into the single bounded-queue design spec §4.3 calls for.
package pool

import "time"

// Config carries every tunable named in spec §4.3's "Configuration"
// paragraph.
type Config struct {
	// ProxyAddresses are the candidate "host:port" strings to dial, one of
	// which is picked at random per dialer (§4.3.2).
	ProxyAddresses []string

	MaxPoolSize int

	// FillInterval, when non-nil, runs fillPool on this cadence in the
	// background. When nil, fillPool runs once synchronously at
	// construction (§4.3.1).
	FillInterval *time.Duration

	CheckInterval       time.Duration
	MaxLifetime         time.Duration
	PingPongReadTimeout time.Duration
	ConnectTimeout      time.Duration
	RetakeInterval      time.Duration

	StartCheckTimer    bool
	CheckTimerInterval time.Duration

	TCPKeepaliveInterval time.Duration
	TCPKeepaliveTime     time.Duration
	TCPKeepaliveRetry    int

	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	SocketSendBufferSize int
	SocketRecvBufferSize int
}
