package pool

import "errors"

// Error kinds from §7 that signal the pool-side outcome of a take or
// heartbeat check. ProxyConnectionExhausted/PingPongTimeout/
// InvalidProxyDataType tell Take to discard the candidate and retry;
// PoolClosed is terminal.
var (
	ErrPoolClosed               = errors.New("pool: closed")
	ErrPingPongTimeout          = errors.New("pool: heartbeat timed out")
	ErrProxyConnectionExhausted = errors.New("pool: proxy closed connection")
	ErrInvalidProxyDataType     = errors.New("pool: unexpected control packet variant")
	ErrConnectProxyTimeout      = errors.New("pool: connect to proxy timed out")
)
