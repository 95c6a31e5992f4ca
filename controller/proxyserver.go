package controller

import (
	"context"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/codec"
	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
	"github.com/cppla/tunnelmoto/netutil"
)

// ListenProxy runs the Proxy's accept loop (§4.5.2, §4.6.2): each
// accepted Agent connection is dispatched to its own goroutine running
// the AwaitingControl -> Relaying state machine. The accept loop never
// dies on a per-connection error (§7).
func ListenProxy(addr string, state *ProxyState) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	state.Logger.Info("proxy listening", zap.String("addr", addr))
	for {
		conn, err := ln.Accept()
		if err != nil {
			state.Logger.Error("proxy accept failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		go handleAgentConnection(conn, state)
	}
}

// handleAgentConnection implements §4.6.2's AwaitingControl state:
// Heartbeats are answered and the loop continues; a TunnelInit request
// transitions to Relaying and this goroutine never returns to the
// control loop.
func handleAgentConnection(conn net.Conn, state *ProxyState) {
	defer func() {
		if r := recover(); r != nil {
			state.Logger.Error("recovered in handleAgentConnection", zap.Any("panic", r))
			conn.Close()
		}
	}()

	cc := codec.NewControlCodec(conn, state.Holder)
	for {
		pkt, err := cc.Decode()
		if err != nil {
			state.Logger.Debug("agent connection control decode failed", zap.Error(err))
			conn.Close()
			return
		}
		switch p := pkt.(type) {
		case domain.ControlHeartbeat:
			pong := domain.ControlHeartbeat{Heartbeat: domain.Heartbeat{
				Kind: domain.HeartbeatPong,
				Time: time.Now().UTC(),
			}}
			if err := cc.Encode(pong); err != nil {
				state.Logger.Debug("heartbeat reply failed", zap.Error(err))
				conn.Close()
				return
			}
			continue
		case domain.ControlTunnelInit:
			if p.Request == nil {
				state.Logger.Debug("unexpected tunnel-init response on agent connection")
				conn.Close()
				return
			}
			handleTunnelInitRequest(conn, cc, p, state)
			return
		default:
			state.Logger.Debug("unexpected control packet on agent connection")
			conn.Close()
			return
		}
	}
}

// handleTunnelInitRequest implements the Proxy side of §4.5.2: dial the
// destination (direct or forward-chained), generate k_p, respond, and
// transition to the relay.
func handleTunnelInitRequest(conn net.Conn, cc *codec.ControlCodec, p domain.ControlTunnelInit, state *ProxyState) {
	req := p.Request
	agentEnc, ok := req.AgentEncryption.(domain.AesEncryption)
	if !ok {
		state.Logger.Debug("tunnel-init request has non-AES agent encryption")
		conn.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), state.ConnectTimeout)
	defer cancel()

	if state.Forward != nil {
		handleForwardedTunnel(ctx, conn, cc, req, agentEnc, state)
		return
	}
	handleDirectTunnel(ctx, conn, cc, req, agentEnc, state)
}

func handleDirectTunnel(ctx context.Context, conn net.Conn, cc *codec.ControlCodec, req *domain.TunnelInitRequest, agentEnc domain.AesEncryption, state *ProxyState) {
	kP, err := crypto.RandomAESKey()
	if err != nil {
		state.Logger.Debug("generate proxy session key failed", zap.Error(err))
		conn.Close()
		return
	}

	switch tt := req.Type.(type) {
	case domain.TCPTunnel:
		dest, err := dialTCPDestination(ctx, req.DstAddress.String(), tt.Keepalive, state.ConnectTimeout)
		if err != nil {
			state.Logger.Debug("dial destination failed", zap.String("dst", req.DstAddress.String()), zap.Error(err))
			conn.Close()
			return
		}
		if err := respondTunnelInit(cc, req.AuthToken, kP); err != nil {
			dest.Close()
			conn.Close()
			return
		}
		raw := netutil.NewPrefixConn(conn, cc.Unwrap().Buffered())
		proxyRelay(raw, dest, agentEnc.Key, kP, state)
	case domain.UDPTunnel:
		dest, err := newUDPDestination()
		if err != nil {
			state.Logger.Debug("open udp destination failed", zap.Error(err))
			conn.Close()
			return
		}
		if err := respondTunnelInit(cc, req.AuthToken, kP); err != nil {
			dest.Close()
			conn.Close()
			return
		}
		raw := netutil.NewPrefixConn(conn, cc.Unwrap().Buffered())
		relayProxyUDP(raw, dest, agentEnc.Key, kP, state.Logger)
	default:
		state.Logger.Debug("unknown tunnel type in request")
		conn.Close()
	}
}

func handleForwardedTunnel(ctx context.Context, conn net.Conn, cc *codec.ControlCodec, req *domain.TunnelInitRequest, agentEnc domain.AesEncryption, state *ProxyState) {
	kP, err := crypto.RandomAESKey()
	if err != nil {
		state.Logger.Debug("generate proxy session key failed", zap.Error(err))
		conn.Close()
		return
	}

	fwdCodec, err := dialForwardProxy(ctx, state.Forward, state.Logger, req.DstAddress, req.Type, state.ProxyRelayBufferSize)
	if err != nil {
		state.Logger.Debug("forward-chain dial failed", zap.String("dst", req.DstAddress.String()), zap.Error(err))
		conn.Close()
		return
	}
	if err := respondTunnelInit(cc, req.AuthToken, kP); err != nil {
		fwdCodec.Close()
		conn.Close()
		return
	}
	raw := netutil.NewPrefixConn(conn, cc.Unwrap().Buffered())

	switch req.Type.(type) {
	case domain.UDPTunnel:
		relayProxyUDP(raw, &forwardUDPDestination{fwd: fwdCodec}, agentEnc.Key, kP, state.Logger)
	default:
		proxyRelay(raw, fwdCodec, agentEnc.Key, kP, state)
	}
}

func respondTunnelInit(cc *codec.ControlCodec, authToken string, kP [32]byte) error {
	return cc.Encode(domain.ControlTunnelInit{
		AuthToken: authToken,
		Response:  &domain.TunnelInitResponse{ProxyEncryption: domain.AesEncryption{Key: kP}},
	})
}

// proxyRelay implements the Proxy side of §4.5.3's full-duplex relay:
// the symmetric counterpart of agentRelay, reading AgentTCP frames off
// the agent connection and writing ProxyTCP frames back.
func proxyRelay(agentConn net.Conn, dest io.ReadWriteCloser, kA, kP [32]byte, state *ProxyState) {
	dc := codec.NewDataCodecSize(agentConn, kA, kP, codec.SideProxy, state.ClientRelayBufferSize)
	relayTCP(dest,
		func(b []byte) error { return dc.EncodeProxy(domain.ProxyTCP{Payload: b}) },
		func() ([]byte, error) {
			pkt, err := dc.DecodeAgentPacket()
			if err != nil {
				return nil, err
			}
			tcp, ok := pkt.(domain.AgentTCP)
			if !ok {
				return nil, ErrInvalidProxyDataType
			}
			return tcp.Payload, nil
		},
		state.ProxyRelayBufferSize, nil, state.Logger)
	agentConn.Close()
}
