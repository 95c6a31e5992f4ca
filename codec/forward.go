package codec

import (
	"fmt"
	"io"

	"github.com/cppla/tunnelmoto/domain"
)

// ForwardDataCodec implements the forward-chain data path (§4.5.4): a
// Proxy that re-tunnels to another Proxy wraps its connection to that
// downstream Proxy in a ForwardDataCodec and presents it as a plain
// io.ReadWriter to the relay, which is unaware it is talking to a chain
// rather than a direct destination.
//
// Framing order resolves §9's "forward-chaining double-encryption" open
// question as purely tunneled: this codec's AES layer (under k_a'/k_p')
// encrypts only the bytes handed to it, and the *outer* tunnel back to the
// Agent encrypts the resulting opaque bytes again as its own
// AgentTCP/ProxyTCP payload. Two independent single-encryption layers
// compose into double encryption of the original plaintext, with neither
// layer re-encrypting the other's ciphertext as a distinct step.
type ForwardDataCodec struct {
	conn    io.Closer
	data    *DataCodec
	pending []byte
}

// NewForwardDataCodec wraps conn, acting as the agent role of the inner
// tunnel to the next Proxy. bufSize honors the forward hop's configured
// relay buffer size the same way a direct destination codec would.
func NewForwardDataCodec(conn io.ReadWriteCloser, agentKey, proxyKey [32]byte, bufSize int) *ForwardDataCodec {
	return &ForwardDataCodec{conn: conn, data: NewDataCodecSize(conn, agentKey, proxyKey, SideAgent, bufSize)}
}

// Close releases the underlying connection to the next Proxy.
func (f *ForwardDataCodec) Close() error { return f.conn.Close() }

// Write encodes p as one AgentTCP data frame, encrypted under k_a'.
func (f *ForwardDataCodec) Write(p []byte) (int, error) {
	if err := f.data.EncodeAgent(domain.AgentTCP{Payload: append([]byte{}, p...)}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read decrypts and decodes ProxyTCP frames under k_p', buffering any
// excess beyond the caller's slice across calls.
func (f *ForwardDataCodec) Read(p []byte) (int, error) {
	for len(f.pending) == 0 {
		pkt, err := f.data.DecodeProxyPacket()
		if err != nil {
			return 0, err
		}
		switch v := pkt.(type) {
		case domain.ProxyTCP:
			f.pending = v.Payload
		case domain.ProxyUDP:
			return 0, fmt.Errorf("%w: ProxyUDP on forward-chain TCP tunnel", ErrUnexpectedVariant)
		default:
			return 0, fmt.Errorf("%w: %T", ErrUnexpectedVariant, pkt)
		}
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// WriteUDP encodes payload as one AgentUDP frame addressed to dst, the
// datagram-oriented counterpart of Write used when the forward-chained
// tunnel is a TunnelType::Udp rather than a byte stream.
func (f *ForwardDataCodec) WriteUDP(dst domain.UnifiedAddress, payload []byte) error {
	return f.data.EncodeAgent(domain.AgentUDP{Destination: dst, Payload: append([]byte{}, payload...)})
}

// ReadUDP decodes one ProxyUDP frame, the datagram-oriented counterpart
// of Read.
func (f *ForwardDataCodec) ReadUDP() (domain.UnifiedAddress, []byte, error) {
	pkt, err := f.data.DecodeProxyPacket()
	if err != nil {
		return domain.UnifiedAddress{}, nil, err
	}
	udp, ok := pkt.(domain.ProxyUDP)
	if !ok {
		return domain.UnifiedAddress{}, nil, fmt.Errorf("%w: %T", ErrUnexpectedVariant, pkt)
	}
	return udp.Destination, udp.Payload, nil
}
