package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
)

func TestDataCodecAgentToProxyRoundTrip(t *testing.T) {
	agentKey, err := crypto.RandomAESKey()
	require.NoError(t, err)
	proxyKey, err := crypto.RandomAESKey()
	require.NoError(t, err)

	var buf bytes.Buffer
	agentSide := NewDataCodec(&buf, agentKey, proxyKey, SideAgent)
	proxySide := NewDataCodec(&buf, agentKey, proxyKey, SideProxy)

	require.NoError(t, agentSide.EncodeAgent(domain.AgentTCP{Payload: []byte("client bytes")}))

	got, err := proxySide.DecodeAgentPacket()
	require.NoError(t, err)
	tcp, ok := got.(domain.AgentTCP)
	require.True(t, ok)
	assert.Equal(t, []byte("client bytes"), tcp.Payload)
}

func TestDataCodecProxyToAgentRoundTrip(t *testing.T) {
	agentKey, err := crypto.RandomAESKey()
	require.NoError(t, err)
	proxyKey, err := crypto.RandomAESKey()
	require.NoError(t, err)

	var buf bytes.Buffer
	agentSide := NewDataCodec(&buf, agentKey, proxyKey, SideAgent)
	proxySide := NewDataCodec(&buf, agentKey, proxyKey, SideProxy)

	require.NoError(t, proxySide.EncodeProxy(domain.ProxyTCP{Payload: []byte("destination bytes")}))

	got, err := agentSide.DecodeProxyPacket()
	require.NoError(t, err)
	tcp, ok := got.(domain.ProxyTCP)
	require.True(t, ok)
	assert.Equal(t, []byte("destination bytes"), tcp.Payload)
}

func TestDataCodecWrongVariantRejected(t *testing.T) {
	agentKey, err := crypto.RandomAESKey()
	require.NoError(t, err)
	proxyKey, err := crypto.RandomAESKey()
	require.NoError(t, err)

	var buf bytes.Buffer
	agentSide := NewDataCodec(&buf, agentKey, proxyKey, SideAgent)
	proxySide := NewDataCodec(&buf, agentKey, proxyKey, SideProxy)

	// Agent side writes an AgentTCP frame; the Proxy side holds the key to
	// decrypt it, but reading it as a ProxyDataPacket must fail with a
	// variant error instead of silently misreading.
	require.NoError(t, agentSide.EncodeAgent(domain.AgentTCP{Payload: []byte("x")}))
	_, err = proxySide.DecodeProxyPacket()
	assert.ErrorIs(t, err, ErrUnexpectedVariant)
}

func TestDataCodecUDPRoundTrip(t *testing.T) {
	agentKey, err := crypto.RandomAESKey()
	require.NoError(t, err)
	proxyKey, err := crypto.RandomAESKey()
	require.NoError(t, err)

	dst, err := domain.NewDomainAddress("upstream.example", 53)
	require.NoError(t, err)

	var buf bytes.Buffer
	agentSide := NewDataCodec(&buf, agentKey, proxyKey, SideAgent)
	proxySide := NewDataCodec(&buf, agentKey, proxyKey, SideProxy)

	require.NoError(t, agentSide.EncodeAgent(domain.AgentUDP{Destination: dst, Payload: []byte("dns query")}))

	got, err := proxySide.DecodeAgentPacket()
	require.NoError(t, err)
	udp, ok := got.(domain.AgentUDP)
	require.True(t, ok)
	assert.Equal(t, "upstream.example:53", udp.Destination.String())
	assert.Equal(t, []byte("dns query"), udp.Payload)
}
