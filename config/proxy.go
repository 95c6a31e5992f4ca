package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ProxyConfig is the Proxy process's TOML-decoded configuration (§6),
// including the optional forward-chain fields.
type ProxyConfig struct {
	Port          int    `toml:"port"`
	WorkerThreads int    `toml:"worker_threads"`
	RsaDir        string `toml:"rsa_dir"`

	ForwardServerAddresses []string `toml:"forward_server_addresses"`
	ForwardAuthToken       string   `toml:"forward_auth_token"`
	ForwardRsaDir          string   `toml:"forward_rsa_dir"`

	Log    LogConfig    `toml:"log"`
	Socket SocketConfig `toml:"socket"`
}

// GlobalProxyCfg is the Proxy process's live configuration.
var GlobalProxyCfg *ProxyConfig

// LoadProxyConfig reads, verifies, and returns the Proxy configuration at
// path.
func LoadProxyConfig(path string) (*ProxyConfig, error) {
	var cfg ProxyConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyProxyDefaults(&cfg)
	if err := cfg.verify(); err != nil {
		return nil, fmt.Errorf("config: verify %s: %w", path, err)
	}
	return &cfg, nil
}

// ReloadProxyConfig re-reads path and replaces GlobalProxyCfg.
func ReloadProxyConfig(path string) error {
	cfg, err := LoadProxyConfig(path)
	if err != nil {
		return err
	}
	GlobalProxyCfg = cfg
	return nil
}

func applyProxyDefaults(c *ProxyConfig) {
	if c.WorkerThreads == 0 {
		c.WorkerThreads = 4
	}
	if c.Socket.TCPKeepaliveInterval == 0 {
		c.Socket.TCPKeepaliveInterval = 30
	}
	if c.Socket.ClientRelayBufferSize == 0 {
		c.Socket.ClientRelayBufferSize = 8192
	}
	if c.Socket.ProxyRelayBufferSize == 0 {
		c.Socket.ProxyRelayBufferSize = 8192
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Path == "" {
		c.Log.Path = "log/proxy.log"
	}
}

// ForwardChainEnabled reports whether this Proxy is configured to
// transparently re-tunnel to another Proxy (§4.5.4).
func (c *ProxyConfig) ForwardChainEnabled() bool {
	return len(c.ForwardServerAddresses) > 0
}

func (c *ProxyConfig) verify() error {
	if c.Port == 0 {
		return fmt.Errorf("missing port")
	}
	if c.RsaDir == "" {
		return fmt.Errorf("missing rsa_dir")
	}
	if c.ForwardChainEnabled() {
		if c.ForwardAuthToken == "" {
			return fmt.Errorf("forward_server_addresses set without forward_auth_token")
		}
		if c.ForwardRsaDir == "" {
			return fmt.Errorf("forward_server_addresses set without forward_rsa_dir")
		}
	}
	return nil
}
