package controller

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/codec"
	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
)

// TestForwardChainEndToEnd wires a client Agent through a forwarding
// Proxy (§4.5.4) to a second, non-forwarding Proxy that dials the real
// destination, and checks relay fidelity across the whole chain:
// client -> Proxy A (forward) -> Proxy B -> echo destination.
func TestForwardChainEndToEnd(t *testing.T) {
	echoAddr, closeEcho := startEchoServer(t)
	defer closeEcho()

	clientHolder, proxyAHolder := newTestHolders(t, "clienttoken")
	forwardAgentHolder, proxyBHolder := newTestHolders(t, "chaintoken")

	proxyBState := &ProxyState{
		Logger:                zap.NewNop(),
		Holder:                proxyBHolder,
		ConnectTimeout:        2 * time.Second,
		ClientRelayBufferSize: 4096,
		ProxyRelayBufferSize:  4096,
	}
	aToB, bSideConn := net.Pipe()
	go handleAgentConnection(bSideConn, proxyBState)

	proxyAState := &ProxyState{
		Logger:                zap.NewNop(),
		Holder:                proxyAHolder,
		ConnectTimeout:        2 * time.Second,
		ClientRelayBufferSize: 4096,
		ProxyRelayBufferSize:  4096,
		Forward: &ForwardState{
			Taker:     &fakeTaker{conn: aToB},
			AuthToken: "chaintoken",
			Holder:    forwardAgentHolder,
		},
	}
	clientToA, aSideConn := net.Pipe()
	go handleAgentConnection(aSideConn, proxyAState)

	agentState := &AgentState{
		Logger:                zap.NewNop(),
		Taker:                 &fakeTaker{conn: clientToA},
		AuthToken:             "clienttoken",
		Holder:                clientHolder,
		ClientRelayBufferSize: 4096,
		ProxyRelayBufferSize:  4096,
	}

	dst, err := domain.ParseUnifiedAddress(echoAddr)
	require.NoError(t, err)

	raw, kA, proxyEnc, err := tunnelInitAgent(context.Background(), agentState, dst, domain.TCPTunnel{Keepalive: false})
	require.NoError(t, err)

	clientSide, testClientSide := net.Pipe()
	go agentRelay(clientSide, raw, kA, proxyEnc, nil, agentState)

	msg := []byte("forwarded through the chain")
	_, err = testClientSide.Write(msg)
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	testClientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = readFull(testClientSide, buf)
	require.NoError(t, err)
	assert.Equal(t, msg, buf)

	testClientSide.Close()
}

// TestForwardChainUDPRoundTrip covers handleForwardedTunnel's
// domain.UDPTunnel branch: a forward-chained UDP tunnel must relay
// AgentUDP/ProxyUDP frames through the downstream Proxy rather than
// silently falling back to the byte-stream TCP relay.
func TestForwardChainUDPRoundTrip(t *testing.T) {
	echoAddr, closeEcho := startUDPEchoServer(t)
	defer closeEcho()

	dst, err := domain.ParseUnifiedAddress(echoAddr)
	require.NoError(t, err)

	forwardAgentHolder, proxyBHolder := newTestHolders(t, "chaintoken")

	proxyBState := &ProxyState{
		Logger:                zap.NewNop(),
		Holder:                proxyBHolder,
		ConnectTimeout:        2 * time.Second,
		ClientRelayBufferSize: 4096,
		ProxyRelayBufferSize:  4096,
	}
	aToB, bSideConn := net.Pipe()
	go handleAgentConnection(bSideConn, proxyBState)

	fwd := &ForwardState{
		Taker:     &fakeTaker{conn: aToB},
		AuthToken: "chaintoken",
		Holder:    forwardAgentHolder,
	}

	fwdCodec, err := dialForwardProxy(context.Background(), fwd, zap.NewNop(), dst, domain.UDPTunnel{}, 4096)
	require.NoError(t, err)

	kA, err := crypto.RandomAESKey()
	require.NoError(t, err)
	kP, err := crypto.RandomAESKey()
	require.NoError(t, err)

	agentConn, proxyAConn := net.Pipe()
	go relayProxyUDP(proxyAConn, &forwardUDPDestination{fwd: fwdCodec}, kA, kP, zap.NewNop())

	dc := codec.NewDataCodec(agentConn, kA, kP, codec.SideAgent)
	payload := []byte("udp over forward chain")
	require.NoError(t, dc.EncodeAgent(domain.AgentUDP{Destination: dst, Payload: payload}))

	agentConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pkt, err := dc.DecodeProxyPacket()
	require.NoError(t, err)
	udpPkt, ok := pkt.(domain.ProxyUDP)
	require.True(t, ok)
	assert.Equal(t, payload, udpPkt.Payload)

	agentConn.Close()
}
