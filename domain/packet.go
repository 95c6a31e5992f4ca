package domain

import "encoding/gob"

// ControlPacket is the tagged union carried by codec.ControlCodec: either a
// tunnel-init message or a heartbeat (§3, tag byte per §6).
type ControlPacket interface {
	isControlPacket()
}

// ControlTunnelInit carries one half of the tunnel-init handshake.
// Exactly one of Request (Agent->Proxy direction) or Response (Proxy->Agent
// direction) is set. AuthToken is always populated so the Proxy->Agent
// direction can be tagged with the originating auth_token (§3), letting the
// codec pick the right RSA key on decode.
type ControlTunnelInit struct {
	AuthToken string
	Request   *TunnelInitRequest
	Response  *TunnelInitResponse
}

func (ControlTunnelInit) isControlPacket() {}

// ControlHeartbeat carries a ping or pong.
type ControlHeartbeat struct {
	Heartbeat Heartbeat
}

func (ControlHeartbeat) isControlPacket() {}

// AgentDataPacket is the tagged union the Agent sends/receives once a
// tunnel has left the pool and is relaying bytes (§3).
type AgentDataPacket interface {
	isAgentDataPacket()
}

// AgentTCP carries a chunk of client-to-destination TCP bytes.
type AgentTCP struct {
	Payload []byte
}

func (AgentTCP) isAgentDataPacket() {}

// AgentUDP carries one client-to-destination UDP datagram.
type AgentUDP struct {
	Destination UnifiedAddress
	Payload     []byte
}

func (AgentUDP) isAgentDataPacket() {}

// ProxyDataPacket is the tagged union the Proxy sends/receives on a
// relaying tunnel.
type ProxyDataPacket interface {
	isProxyDataPacket()
}

// ProxyTCP carries a chunk of destination-to-client TCP bytes.
type ProxyTCP struct {
	Payload []byte
}

func (ProxyTCP) isProxyDataPacket() {}

// ProxyUDP carries one destination-to-client UDP datagram.
type ProxyUDP struct {
	Destination UnifiedAddress
	Payload     []byte
}

func (ProxyUDP) isProxyDataPacket() {}

func init() {
	gob.Register(ControlTunnelInit{})
	gob.Register(ControlHeartbeat{})
	gob.Register(AgentTCP{})
	gob.Register(AgentUDP{})
	gob.Register(ProxyTCP{})
	gob.Register(ProxyUDP{})
}
