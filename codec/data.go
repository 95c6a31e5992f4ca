package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
)

// Side identifies which end of a tunnel a DataCodec instance serves,
// determining which of the two session keys is used to encrypt outgoing
// frames versus decrypt incoming ones (§4.1).
type Side int

const (
	SideAgent Side = iota
	SideProxy
)

// DataCodec encodes/decodes DataPacket values once a tunnel has left the
// pool and is relaying bytes. Each instance is keyed by both session AES
// keys, immutable for the life of the tunnel (§5: "captured by move into
// the per-direction codec instances, so no locking is needed").
type DataCodec struct {
	framer   *Framer
	agentKey [32]byte
	proxyKey [32]byte
	side     Side
}

// NewDataCodec wraps rw in a data-packet codec for the given side, using
// the default framer buffer size.
func NewDataCodec(rw io.ReadWriter, agentKey, proxyKey [32]byte, side Side) *DataCodec {
	return NewDataCodecSize(rw, agentKey, proxyKey, side, defaultFramerBufSize)
}

// NewDataCodecSize is NewDataCodec with an explicit framer buffer size, so
// the relay can honor the configured client_relay_buffer_size /
// proxy_relay_buffer_size (§4.5.3) instead of bufio's default.
func NewDataCodecSize(rw io.ReadWriter, agentKey, proxyKey [32]byte, side Side, bufSize int) *DataCodec {
	return &DataCodec{framer: NewFramerSize(rw, bufSize), agentKey: agentKey, proxyKey: proxyKey, side: side}
}

func (c *DataCodec) ownKey() [32]byte {
	if c.side == SideAgent {
		return c.agentKey
	}
	return c.proxyKey
}

func (c *DataCodec) peerKey() [32]byte {
	if c.side == SideAgent {
		return c.proxyKey
	}
	return c.agentKey
}

// EncodeAgent sends an AgentDataPacket, encrypted under this side's own
// key. Only meaningful when side == SideAgent.
func (c *DataCodec) EncodeAgent(pkt domain.AgentDataPacket) error {
	return c.encode(pkt)
}

// EncodeProxy sends a ProxyDataPacket, encrypted under this side's own
// key. Only meaningful when side == SideProxy.
func (c *DataCodec) EncodeProxy(pkt domain.ProxyDataPacket) error {
	return c.encode(pkt)
}

func (c *DataCodec) encode(pkt interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&pkt); err != nil {
		return fmt.Errorf("codec: encode data packet: %w", err)
	}
	ciphertext, err := crypto.AESEncrypt(c.ownKey(), buf.Bytes())
	if err != nil {
		return fmt.Errorf("codec: encrypt data packet: %w", err)
	}
	frame := make([]byte, 0, len(ciphertext)+1)
	frame = append(frame, tagData)
	frame = append(frame, ciphertext...)
	return c.framer.WriteFrame(frame)
}

// DecodeAgentPacket reads and decrypts one AgentDataPacket. Used by the
// Proxy side, which receives AgentDataPacket frames.
func (c *DataCodec) DecodeAgentPacket() (domain.AgentDataPacket, error) {
	v, err := c.decode()
	if err != nil {
		return nil, err
	}
	pkt, ok := v.(domain.AgentDataPacket)
	if !ok {
		return nil, fmt.Errorf("%w: expected AgentDataPacket, got %T", ErrUnexpectedVariant, v)
	}
	return pkt, nil
}

// DecodeProxyPacket reads and decrypts one ProxyDataPacket. Used by the
// Agent side, which receives ProxyDataPacket frames.
func (c *DataCodec) DecodeProxyPacket() (domain.ProxyDataPacket, error) {
	v, err := c.decode()
	if err != nil {
		return nil, err
	}
	pkt, ok := v.(domain.ProxyDataPacket)
	if !ok {
		return nil, fmt.Errorf("%w: expected ProxyDataPacket, got %T", ErrUnexpectedVariant, v)
	}
	return pkt, nil
}

func (c *DataCodec) decode() (interface{}, error) {
	frame, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(frame) < 1 || frame[0] != tagData {
		return nil, fmt.Errorf("%w: expected data tag", ErrUnknownTag)
	}
	plaintext, err := crypto.AESDecrypt(c.peerKey(), frame[1:])
	if err != nil {
		return nil, fmt.Errorf("codec: decrypt data packet: %w", err)
	}
	var v interface{}
	if err := gob.NewDecoder(bytes.NewReader(plaintext)).Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode data packet: %w", err)
	}
	return v, nil
}
