package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
)

const (
	tagTunnelInit byte = 0x00
	tagHeartbeat  byte = 0x01
	tagData       byte = 0x02
)

// wireControlPacket is the gob-serialized shape of a ControlPacket. The
// session AES key (if any) travels as an RSA ciphertext (EncryptedKey),
// never as raw key bytes (§4.1, §6).
type wireControlPacket struct {
	AuthToken     string
	IsRequest     bool
	DstAddress    string
	IsUDP         bool
	Keepalive     bool
	EncryptedKey  []byte // nil => Plain encryption
	HeartbeatKind byte
	HeartbeatTime time.Time
}

// ControlCodec encodes and decodes ControlPacket values over a Framer,
// RSA-wrapping the session AES key under the recipient's public key on
// encode and unwrapping it with the local private key on decode (§4.1).
// The same RSAHolder and codec implementation serve both the Agent and
// the Proxy: each ControlPacket carries the auth_token naming the keypair
// to use, so the codec never needs to know which side it runs on.
type ControlCodec struct {
	framer *Framer
	holder *crypto.RSAHolder
}

// NewControlCodec wraps rw in a control-packet codec backed by holder.
func NewControlCodec(rw io.ReadWriter, holder *crypto.RSAHolder) *ControlCodec {
	return &ControlCodec{framer: NewFramer(rw), holder: holder}
}

// Unwrap returns the underlying connection's framer, preserving any bytes
// already buffered but not yet consumed, so the caller can hand the raw
// stream off to a different codec (§4.5.1, §4.3.4).
func (c *ControlCodec) Unwrap() *Framer { return c.framer }

func (c *ControlCodec) wrapKey(authToken string, enc domain.Encryption) ([]byte, error) {
	aes, ok := enc.(domain.AesEncryption)
	if !ok {
		return nil, nil
	}
	kp, ok := c.holder.Lookup(authToken)
	if !ok {
		return nil, fmt.Errorf("codec: no keypair for auth_token %q", authToken)
	}
	ciphertext, err := kp.Encrypt(aes.Key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: wrap session key: %w", err)
	}
	return ciphertext, nil
}

func (c *ControlCodec) unwrapKey(authToken string, encryptedKey []byte) (domain.Encryption, error) {
	if encryptedKey == nil {
		return domain.PlainEncryption{}, nil
	}
	kp, ok := c.holder.Lookup(authToken)
	if !ok {
		return nil, fmt.Errorf("codec: no keypair for auth_token %q", authToken)
	}
	plain, err := kp.Decrypt(encryptedKey)
	if err != nil {
		return nil, fmt.Errorf("codec: unwrap session key: %w", err)
	}
	if len(plain) != 32 {
		return nil, fmt.Errorf("codec: unwrapped session key has wrong length %d", len(plain))
	}
	var enc domain.AesEncryption
	copy(enc.Key[:], plain)
	return enc, nil
}

// Encode writes one ControlPacket as a single length-delimited frame.
func (c *ControlCodec) Encode(pkt domain.ControlPacket) error {
	var wire wireControlPacket
	var tag byte

	switch p := pkt.(type) {
	case domain.ControlTunnelInit:
		tag = tagTunnelInit
		wire.AuthToken = p.AuthToken
		switch {
		case p.Request != nil:
			wire.IsRequest = true
			wire.DstAddress = p.Request.DstAddress.String()
			if udp, ok := p.Request.Type.(domain.UDPTunnel); ok {
				_ = udp
				wire.IsUDP = true
			} else if tcp, ok := p.Request.Type.(domain.TCPTunnel); ok {
				wire.Keepalive = tcp.Keepalive
			}
			key, err := c.wrapKey(p.AuthToken, p.Request.AgentEncryption)
			if err != nil {
				return err
			}
			wire.EncryptedKey = key
		case p.Response != nil:
			wire.IsRequest = false
			key, err := c.wrapKey(p.AuthToken, p.Response.ProxyEncryption)
			if err != nil {
				return err
			}
			wire.EncryptedKey = key
		default:
			return fmt.Errorf("codec: tunnel-init packet has neither request nor response")
		}
	case domain.ControlHeartbeat:
		tag = tagHeartbeat
		wire.HeartbeatKind = byte(p.Heartbeat.Kind)
		wire.HeartbeatTime = p.Heartbeat.Time
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedVariant, pkt)
	}

	var buf bytes.Buffer
	buf.WriteByte(tag)
	if err := gob.NewEncoder(&buf).Encode(&wire); err != nil {
		return fmt.Errorf("codec: encode control packet: %w", err)
	}
	return c.framer.WriteFrame(buf.Bytes())
}

// Decode reads one ControlPacket from the next length-delimited frame.
func (c *ControlCodec) Decode() (domain.ControlPacket, error) {
	frame, err := c.framer.ReadFrame()
	if err != nil {
		return nil, err
	}
	if len(frame) < 1 {
		return nil, fmt.Errorf("%w: empty control frame", ErrShortFrame)
	}
	tag, payload := frame[0], frame[1:]

	var wire wireControlPacket
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("codec: decode control packet: %w", err)
	}

	switch tag {
	case tagTunnelInit:
		enc, err := c.unwrapKey(wire.AuthToken, wire.EncryptedKey)
		if err != nil {
			return nil, err
		}
		if wire.IsRequest {
			dst, err := domain.ParseUnifiedAddress(wire.DstAddress)
			if err != nil {
				return nil, fmt.Errorf("codec: decode dst address: %w", err)
			}
			var tt domain.TunnelType
			if wire.IsUDP {
				tt = domain.UDPTunnel{}
			} else {
				tt = domain.TCPTunnel{Keepalive: wire.Keepalive}
			}
			return domain.ControlTunnelInit{
				AuthToken: wire.AuthToken,
				Request: &domain.TunnelInitRequest{
					AgentEncryption: enc,
					AuthToken:       wire.AuthToken,
					DstAddress:      dst,
					Type:            tt,
				},
			}, nil
		}
		return domain.ControlTunnelInit{
			AuthToken: wire.AuthToken,
			Response:  &domain.TunnelInitResponse{ProxyEncryption: enc},
		}, nil
	case tagHeartbeat:
		return domain.ControlHeartbeat{Heartbeat: domain.Heartbeat{
			Kind: domain.HeartbeatKind(wire.HeartbeatKind),
			Time: wire.HeartbeatTime,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, tag)
	}
}
