package codec

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/domain"
)

// newTestHolder builds a one-token RSAHolder backed by a self-paired
// keypair (local private key and peer public key both drawn from the same
// generated pair), sufficient to exercise ControlCodec's wrap/unwrap
// without standing up two separate processes.
func newTestHolder(t *testing.T, authToken string) *crypto.RSAHolder {
	t.Helper()
	dir := t.TempDir()
	tokenDir := filepath.Join(dir, authToken)
	require.NoError(t, os.MkdirAll(tokenDir, 0o755))
	writeTestRSAKeyPair(t, filepath.Join(tokenDir, "local.pem"), filepath.Join(tokenDir, "peer.pem"))

	holder, err := crypto.LoadRSAHolder(dir, "local.pem", "peer.pem", zap.NewNop())
	require.NoError(t, err)
	return holder
}

func TestControlCodecTunnelInitRoundTrip(t *testing.T) {
	holder := newTestHolder(t, "agent1")
	var buf bytes.Buffer

	enc := NewControlCodec(&buf, holder)
	dec := NewControlCodec(&buf, holder)

	dst, err := domain.NewDomainAddress("example.com", 443)
	require.NoError(t, err)
	key, err := crypto.RandomAESKey()
	require.NoError(t, err)

	req := domain.ControlTunnelInit{
		AuthToken: "agent1",
		Request: &domain.TunnelInitRequest{
			AgentEncryption: domain.AesEncryption{Key: key},
			AuthToken:       "agent1",
			DstAddress:      dst,
			Type:            domain.TCPTunnel{Keepalive: true},
		},
	}
	require.NoError(t, enc.Encode(req))

	got, err := dec.Decode()
	require.NoError(t, err)

	gotReq, ok := got.(domain.ControlTunnelInit)
	require.True(t, ok)
	require.NotNil(t, gotReq.Request)
	assert.Equal(t, "example.com:443", gotReq.Request.DstAddress.String())
	tcp, ok := gotReq.Request.Type.(domain.TCPTunnel)
	require.True(t, ok)
	assert.True(t, tcp.Keepalive)

	gotEnc, ok := gotReq.Request.AgentEncryption.(domain.AesEncryption)
	require.True(t, ok)
	assert.Equal(t, key, gotEnc.Key)
}

func TestControlCodecHeartbeatRoundTrip(t *testing.T) {
	holder := newTestHolder(t, "agent1")
	var buf bytes.Buffer

	enc := NewControlCodec(&buf, holder)
	dec := NewControlCodec(&buf, holder)

	now := time.Now().UTC().Round(time.Second)
	require.NoError(t, enc.Encode(domain.ControlHeartbeat{Heartbeat: domain.Heartbeat{
		Kind: domain.HeartbeatPing,
		Time: now,
	}}))

	got, err := dec.Decode()
	require.NoError(t, err)
	hb, ok := got.(domain.ControlHeartbeat)
	require.True(t, ok)
	assert.Equal(t, domain.HeartbeatPing, hb.Heartbeat.Kind)
	assert.True(t, now.Equal(hb.Heartbeat.Time))
}

func TestControlCodecUnknownAuthTokenFails(t *testing.T) {
	holder := newTestHolder(t, "agent1")
	var buf bytes.Buffer
	enc := NewControlCodec(&buf, holder)

	key, err := crypto.RandomAESKey()
	require.NoError(t, err)
	dst, err := domain.NewDomainAddress("example.com", 443)
	require.NoError(t, err)

	err = enc.Encode(domain.ControlTunnelInit{
		AuthToken: "unknown-token",
		Request: &domain.TunnelInitRequest{
			AgentEncryption: domain.AesEncryption{Key: key},
			AuthToken:       "unknown-token",
			DstAddress:      dst,
			Type:            domain.TCPTunnel{},
		},
	})
	assert.Error(t, err)
}
