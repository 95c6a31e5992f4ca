package controller

import (
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

// startUDPEchoServer answers every datagram it receives with the same
// payload, standing in for a UDP destination (e.g. a DNS resolver).
func startUDPEchoServer(t *testing.T) (addr string, closeFn func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		buf := make([]byte, 65536)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if _, err := pc.WriteTo(buf[:n], from); err != nil {
				return
			}
		}
	}()
	return pc.LocalAddr().String(), func() { pc.Close() }
}

// TestRelayProxyUDPRoundTrip implements the SUPPLEMENTAL UDP-tunnel path
// (§MODULE: controller udp.go): an AgentUDP frame addressed to a real UDP
// destination is relayed out, and the reply datagram comes back as a
// ProxyUDP frame naming the same source.
func TestRelayProxyUDPRoundTrip(t *testing.T) {
	echoAddr, closeEcho := startUDPEchoServer(t)
	defer closeEcho()

	dst, err := domain.ParseUnifiedAddress(echoAddr)
	require.NoError(t, err)

	kA, err := crypto.RandomAESKey()
	require.NoError(t, err)
	kP, err := crypto.RandomAESKey()
	require.NoError(t, err)

	dest, err := newUDPDestination()
	require.NoError(t, err)

	agentConn, proxyConn := net.Pipe()
	go relayProxyUDP(proxyConn, dest, kA, kP, zap.NewNop())

	dc := codec.NewDataCodec(agentConn, kA, kP, codec.SideAgent)
	payload := []byte("udp datagram payload")
	require.NoError(t, dc.EncodeAgent(domain.AgentUDP{Destination: dst, Payload: payload}))

	agentConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	pkt, err := dc.DecodeProxyPacket()
	require.NoError(t, err)
	udpPkt, ok := pkt.(domain.ProxyUDP)
	require.True(t, ok)
	assert.Equal(t, payload, udpPkt.Payload)

	agentConn.Close()
}
