package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/codec"
	"github.com/cppla/tunnelmoto/domain"
)

// dialForwardProxy implements §4.5.4's forward-chain dial: this Proxy
// performs agent-role tunnel-init toward a downstream Proxy using the
// dedicated forward RSA holder and forward_auth_token, carrying the same
// dst/tunnel-type the original client requested, then wraps the result
// in a ForwardDataCodec presenting a plain io.ReadWriteCloser to the
// relay. The downstream connection comes from fwd.Taker; with the
// pool.UnpooledDialer that cmd/proxy wires in, each call dials one
// configured forward address picked at random, with no race between
// addresses and no fallback to another address when that dial fails.
func dialForwardProxy(ctx context.Context, fwd *ForwardState, logger *zap.Logger, dst domain.UnifiedAddress, tt domain.TunnelType, bufSize int) (*codec.ForwardDataCodec, error) {
	raw, kAprime, proxyEnc, err := negotiateTunnelInit(ctx, fwd.Taker, fwd.AuthToken, fwd.Holder, logger, dst, tt)
	if err != nil {
		return nil, fmt.Errorf("controller: forward-chain tunnel-init: %w", err)
	}
	aesEnc, ok := proxyEnc.(domain.AesEncryption)
	if !ok {
		raw.Close()
		return nil, fmt.Errorf("controller: forward-chain tunnel-init returned non-AES encryption")
	}
	return codec.NewForwardDataCodec(raw, kAprime, aesEnc.Key, bufSize), nil
}

// forwardUDPDestination adapts a ForwardDataCodec to udpRelayDestination
// so relayProxyUDP can treat a forward-chained UDP tunnel exactly like a
// real UDP socket: a datagram received from the original Agent is
// re-encoded as an AgentUDP frame toward the next Proxy, and a ProxyUDP
// frame coming back from that hop is handed upstream as if it had
// arrived straight from the destination.
type forwardUDPDestination struct {
	fwd *codec.ForwardDataCodec
}

func (f *forwardUDPDestination) Close() error { return f.fwd.Close() }

func (f *forwardUDPDestination) ReadDatagram() (domain.UnifiedAddress, []byte, error) {
	return f.fwd.ReadUDP()
}

func (f *forwardUDPDestination) WriteDatagram(dst domain.UnifiedAddress, payload []byte) error {
	return f.fwd.WriteUDP(dst, payload)
}
