package domain

import "time"

// TunnelType selects whether a tunnel carries a TCP stream or encapsulated
// UDP datagrams.
type TunnelType interface {
	isTunnelType()
}

// TCPTunnel requests a TCP-backed tunnel, optionally with TCP keepalive on
// the Proxy's destination dial.
type TCPTunnel struct {
	Keepalive bool
}

func (TCPTunnel) isTunnelType() {}

// UDPTunnel requests a UDP-backed tunnel.
type UDPTunnel struct{}

func (UDPTunnel) isTunnelType() {}

// TunnelInitRequest is the Agent->Proxy half of the tunnel-init handshake
// (§4.5.1). AgentEncryption is always an AesEncryption on the wire; the key
// is RSA-wrapped under the Proxy's public key before the enclosing
// ControlPacket is encoded (see codec.ControlCodec).
type TunnelInitRequest struct {
	AgentEncryption Encryption
	AuthToken       string
	DstAddress      UnifiedAddress
	Type            TunnelType
}

// TunnelInitResponse is the Proxy->Agent half of the handshake.
// ProxyEncryption is RSA-wrapped the same way as the request's key.
type TunnelInitResponse struct {
	ProxyEncryption Encryption
}

// HeartbeatKind distinguishes a ping from its pong.
type HeartbeatKind int

const (
	HeartbeatPing HeartbeatKind = iota
	HeartbeatPong
)

// Heartbeat is exchanged on pool-held, pre-init connections to validate
// liveness (§4.3.4). The timestamp is informational only.
type Heartbeat struct {
	Kind HeartbeatKind
	Time time.Time
}
