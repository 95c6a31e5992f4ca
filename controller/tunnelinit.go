package controller

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/codec"
	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
	"github.com/cppla/tunnelmoto/netutil"
	"github.com/cppla/tunnelmoto/pool"
)

// tunnelInitAgent implements §4.5.1: take a pooled connection, wrap it in
// a control codec, negotiate session keys, and hand back the raw
// connection (with any buffered bytes preserved) ready for the data
// codec. Any error here is fatal to the owning client session.
func tunnelInitAgent(ctx context.Context, state *AgentState, dst domain.UnifiedAddress, tt domain.TunnelType) (net.Conn, [32]byte, domain.Encryption, error) {
	return negotiateTunnelInit(ctx, state.Taker, state.AuthToken, state.Holder, state.Logger, dst, tt)
}

// negotiateTunnelInit performs the agent role of tunnel-init (§4.5.1)
// against any Taker: the client-facing Agent pool for a direct session,
// or a forward-chain Taker dialing a downstream Proxy (§4.5.4). Both
// reduce to the identical take/encode/await-response loop.
func negotiateTunnelInit(ctx context.Context, taker pool.Taker, authToken string, holder *crypto.RSAHolder, logger *zap.Logger, dst domain.UnifiedAddress, tt domain.TunnelType) (net.Conn, [32]byte, domain.Encryption, error) {
	var kA [32]byte

	pooled, err := taker.Take(ctx)
	if err != nil {
		return nil, kA, nil, fmt.Errorf("controller: take proxy connection: %w", err)
	}

	cc := codec.NewControlCodec(pooled.Conn, holder)

	kA, err = crypto.RandomAESKey()
	if err != nil {
		pooled.Close()
		return nil, kA, nil, fmt.Errorf("controller: generate session key: %w", err)
	}

	req := domain.ControlTunnelInit{
		AuthToken: authToken,
		Request: &domain.TunnelInitRequest{
			AgentEncryption: domain.AesEncryption{Key: kA},
			AuthToken:       authToken,
			DstAddress:      dst,
			Type:            tt,
		},
	}
	if err := cc.Encode(req); err != nil {
		pooled.Close()
		return nil, kA, nil, fmt.Errorf("controller: send tunnel-init: %w", err)
	}

	for {
		pkt, err := cc.Decode()
		if err != nil {
			pooled.Close()
			return nil, kA, nil, fmt.Errorf("controller: await tunnel-init response: %w", err)
		}
		switch p := pkt.(type) {
		case domain.ControlHeartbeat:
			logger.Debug("heartbeat while awaiting tunnel-init", zap.Time("sent_at", p.Heartbeat.Time))
			continue
		case domain.ControlTunnelInit:
			if p.Response == nil {
				pooled.Close()
				return nil, kA, nil, fmt.Errorf("controller: tunnel-init response has no Response field")
			}
			raw := netutil.NewPrefixConn(pooled.Conn, cc.Unwrap().Buffered())
			return raw, kA, p.Response.ProxyEncryption, nil
		default:
			pooled.Close()
			return nil, kA, nil, fmt.Errorf("controller: unexpected control packet %T awaiting tunnel-init", pkt)
		}
	}
}

// agentRelay finishes a client session after a successful tunnelInitAgent:
// wraps raw in the data codec and relays client<->proxy bytes (§4.5.3),
// shared by the SOCKS5 and HTTP handlers to avoid repeating the
// codec-setup boilerplate.
func agentRelay(client net.Conn, raw net.Conn, kA [32]byte, proxyEnc domain.Encryption, initial []byte, state *AgentState) {
	aesEnc, ok := proxyEnc.(domain.AesEncryption)
	if !ok {
		raw.Close()
		client.Close()
		return
	}
	dc := codec.NewDataCodecSize(raw, kA, aesEnc.Key, codec.SideAgent, state.ProxyRelayBufferSize)
	defer raw.Close()
	relayTCP(client,
		func(b []byte) error { return dc.EncodeAgent(domain.AgentTCP{Payload: b}) },
		func() ([]byte, error) {
			pkt, err := dc.DecodeProxyPacket()
			if err != nil {
				return nil, err
			}
			tcp, ok := pkt.(domain.ProxyTCP)
			if !ok {
				return nil, ErrInvalidProxyDataType
			}
			return tcp.Payload, nil
		},
		state.ClientRelayBufferSize, initial, state.Logger)
}
