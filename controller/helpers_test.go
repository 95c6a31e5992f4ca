package controller

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/pool"
)

// fakeTaker hands out a single pre-established net.Conn as though it had
// just been taken from the pool, so tunnel-init can be exercised over an
// in-memory net.Pipe instead of a bound TCP socket.
type fakeTaker struct {
	conn net.Conn
}

func (f *fakeTaker) Take(ctx context.Context) (*pool.PooledConnection, error) {
	return &pool.PooledConnection{Conn: f.conn}, nil
}

func (f *fakeTaker) Return(*pool.PooledConnection) {}

var _ pool.Taker = (*fakeTaker)(nil)

// erroringTaker always fails Take, standing in for a Proxy that is
// unreachable or a pool that has nothing to offer.
type erroringTaker struct{}

func (erroringTaker) Take(context.Context) (*pool.PooledConnection, error) {
	return nil, errTakerUnavailable
}
func (erroringTaker) Return(*pool.PooledConnection) {}

var errTakerUnavailable = errors.New("controller test: taker unavailable")

var _ pool.Taker = erroringTaker{}

func writeRSAPair(t *testing.T, privPath, pubPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}), 0o644))
}

// newTestHolders builds an Agent-side and Proxy-side RSAHolder sharing one
// auth_token, both pointing at the same freshly generated (self-paired, for
// test simplicity) RSA keypair under the filenames §6 specifies, so each
// side can unwrap the session key the other side wrapped.
func newTestHolders(t *testing.T, authToken string) (agentHolder, proxyHolder *crypto.RSAHolder) {
	t.Helper()
	agentDir := filepath.Join(t.TempDir(), authToken)
	require.NoError(t, os.MkdirAll(agentDir, 0o755))
	writeRSAPair(t, filepath.Join(agentDir, "AgentPrivateKey.pem"), filepath.Join(agentDir, "ProxyPublicKey.pem"))

	proxyDir := filepath.Join(t.TempDir(), authToken)
	require.NoError(t, os.MkdirAll(proxyDir, 0o755))
	priv, err := os.ReadFile(filepath.Join(agentDir, "AgentPrivateKey.pem"))
	require.NoError(t, err)
	pub, err := os.ReadFile(filepath.Join(agentDir, "ProxyPublicKey.pem"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(proxyDir, "ProxyPrivateKey.pem"), priv, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(proxyDir, "AgentPublicKey.pem"), pub, 0o644))

	agentHolder, err = crypto.LoadRSAHolder(filepath.Dir(agentDir), "AgentPrivateKey.pem", "ProxyPublicKey.pem", zap.NewNop())
	require.NoError(t, err)
	proxyHolder, err = crypto.LoadRSAHolder(filepath.Dir(proxyDir), "ProxyPrivateKey.pem", "AgentPublicKey.pem", zap.NewNop())
	require.NoError(t, err)
	return agentHolder, proxyHolder
}

// startEchoServer runs a TCP listener that echoes back whatever it reads,
// standing in for the "real destination" a tunnel is opened to.
func startEchoServer(t *testing.T) (addr string, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						if _, werr := c.Write(buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

// newWiredStates builds a connected Agent/Proxy state pair sharing one
// in-memory pipe and auth_token, with the Proxy's per-connection state
// machine already running in the background, ready for a single
// tunnel-init attempt.
func newWiredStates(t *testing.T) (*AgentState, *ProxyState) {
	t.Helper()
	agentConn, proxyConn := net.Pipe()

	agentHolder, proxyHolder := newTestHolders(t, "testtoken")

	agentState := &AgentState{
		Logger:                zap.NewNop(),
		Taker:                 &fakeTaker{conn: agentConn},
		AuthToken:             "testtoken",
		Holder:                agentHolder,
		ClientRelayBufferSize: 4096,
		ProxyRelayBufferSize:  4096,
	}
	proxyState := &ProxyState{
		Logger:                zap.NewNop(),
		Holder:                proxyHolder,
		ConnectTimeout:        2 * time.Second,
		ClientRelayBufferSize: 4096,
		ProxyRelayBufferSize:  4096,
	}

	go handleAgentConnection(proxyConn, proxyState)
	return agentState, proxyState
}
