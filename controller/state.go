// Package controller implements the client-facing dispatcher and protocol
// handlers (§4.4), tunnel-init and full-duplex relay (§4.5), and the
// Proxy-side agent-connection state machine (§4.5.2, §4.6.2). It
// generalizes the teacher's controller/{server,direct,boost,normal,
// roundrobin,regex,accelerator}.go, which routed plain TCP by a
// configured rule/mode, into protocol-sniffing dispatch over an
// encrypted tunnel.
package controller

import (
	"time"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/pool"
)

// AgentState is the immutable snapshot held by every client-facing
// goroutine on the Agent side (§3's ServerState, specialized to the
// Agent). Built once at startup and passed by pointer; nothing in it is
// mutated after construction.
type AgentState struct {
	Logger *zap.Logger

	Taker     pool.Taker
	AuthToken string
	Holder    *crypto.RSAHolder

	ClientRelayBufferSize int
	ProxyRelayBufferSize  int
}

// ForwardState carries the forward-chain configuration (§4.5.4): a
// dedicated pool/dialer, auth token and RSA holder scoped to the
// downstream Proxy, distinct from the primary session's.
type ForwardState struct {
	Taker     pool.Taker
	AuthToken string
	Holder    *crypto.RSAHolder
}

// ProxyState is the immutable snapshot held by every agent-connection
// goroutine on the Proxy side. Forward is nil when forward-chaining is
// disabled.
type ProxyState struct {
	Logger *zap.Logger

	Holder         *crypto.RSAHolder
	ConnectTimeout time.Duration

	ClientRelayBufferSize int
	ProxyRelayBufferSize  int

	Forward *ForwardState
}
