// Package config loads the Agent and Proxy TOML configuration files
// (spec §6) and fills in defaults, adapted from the teacher's
// config/setting.go pattern of a global pointer plus a Reload(path) that
// re-parses and re-verifies (here via github.com/BurntSushi/toml instead
// of encoding/json, per §6's explicit TOML format).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// LogConfig mirrors the teacher's log section: the level threshold and the
// log file path. Rotation settings are fixed in utils.NewLogger.
type LogConfig struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

// PoolConfig carries the §4.3 "Configuration" fields as they appear in the
// TOML file, all in integer seconds except the booleans and sizes.
type PoolConfig struct {
	Size                  *int  `toml:"proxy_connection_pool_size"`
	FillIntervalSeconds   *int  `toml:"proxy_connection_pool_fill_interval"`
	StartCheckTimer       bool  `toml:"proxy_connection_start_check_timer"`
	CheckTimerInterval    int   `toml:"proxy_connection_start_check_timer_interval"`
	CheckInterval         int   `toml:"proxy_connection_check_interval"`
	MaxLifetime           int   `toml:"proxy_connection_max_lifetime"`
	PingPongReadTimeout   int   `toml:"proxy_connection_ping_pong_read_timeout"`
	RetakeInterval        int   `toml:"proxy_connection_retake_interval"`
	ConnectTimeout        int   `toml:"proxy_connect_timeout"`
}

// SocketConfig mirrors the per-socket `*_tcp_keepalive*`/`*_read_timeout`/
// etc. family from §6.
type SocketConfig struct {
	TCPKeepaliveInterval  int `toml:"tcp_keepalive_interval"`
	TCPKeepaliveTime      int `toml:"tcp_keepalive_time"`
	TCPKeepaliveRetry     int `toml:"tcp_keepalive_retry"`
	ReadTimeout           int `toml:"read_timeout"`
	WriteTimeout          int `toml:"write_timeout"`
	SendBufferSize        int `toml:"socket_send_buffer_size"`
	ReceiveBufferSize     int `toml:"socket_receive_buffer_size"`
	ClientRelayBufferSize int `toml:"client_relay_buffer_size"`
	ProxyRelayBufferSize  int `toml:"proxy_relay_buffer_size"`
}

// AgentConfig is the Agent process's TOML-decoded configuration.
type AgentConfig struct {
	Port           int      `toml:"port"`
	WorkerThreads  int      `toml:"worker_threads"`
	AuthToken      string   `toml:"auth_token"`
	RsaDir         string   `toml:"rsa_dir"`
	ProxyAddresses []string `toml:"proxy_addresses"`

	Log    LogConfig    `toml:"log"`
	Pool   PoolConfig   `toml:"pool"`
	Socket SocketConfig `toml:"socket"`
}

// GlobalAgentCfg is the Agent process's live configuration, replaced
// wholesale by Reload.
var GlobalAgentCfg *AgentConfig

// LoadAgentConfig reads, verifies, and returns the Agent configuration at
// path. It does not mutate GlobalAgentCfg; callers that want process-wide
// visibility should assign the result themselves (see cmd/agent).
func LoadAgentConfig(path string) (*AgentConfig, error) {
	var cfg AgentConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyAgentDefaults(&cfg)
	if err := cfg.verify(); err != nil {
		return nil, fmt.Errorf("config: verify %s: %w", path, err)
	}
	return &cfg, nil
}

// ReloadAgentConfig re-reads path and replaces GlobalAgentCfg.
func ReloadAgentConfig(path string) error {
	cfg, err := LoadAgentConfig(path)
	if err != nil {
		return err
	}
	GlobalAgentCfg = cfg
	return nil
}

func applyAgentDefaults(c *AgentConfig) {
	if c.WorkerThreads == 0 {
		c.WorkerThreads = 4
	}
	if c.Pool.CheckInterval == 0 {
		c.Pool.CheckInterval = 60
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = 600
	}
	if c.Pool.PingPongReadTimeout == 0 {
		c.Pool.PingPongReadTimeout = 5
	}
	if c.Pool.RetakeInterval == 0 {
		c.Pool.RetakeInterval = 1
	}
	if c.Pool.ConnectTimeout == 0 {
		c.Pool.ConnectTimeout = 5
	}
	if c.Pool.CheckTimerInterval == 0 {
		c.Pool.CheckTimerInterval = 30
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
		c.Log.Path = "log/agent.log"
	}
}

func (c *AgentConfig) verify() error {
	if c.Port == 0 {
		return fmt.Errorf("missing port")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("missing auth_token")
	}
	if c.RsaDir == "" {
		return fmt.Errorf("missing rsa_dir")
	}
	if len(c.ProxyAddresses) == 0 {
		return fmt.Errorf("missing proxy_addresses")
	}
	return nil
}

// Seconds is a tiny helper so call sites can write
// config.Seconds(c.Pool.ConnectTimeout) instead of repeating the
// time.Duration(n) * time.Second cast everywhere.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// FileExists reports whether path names a regular, readable file; used by
// cmd/agent and cmd/proxy to fail fast with a clear message before TOML
// decoding produces a less obvious error.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
