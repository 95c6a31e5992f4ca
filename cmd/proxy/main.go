// Command proxy runs the Proxy process (§4.1, §4.5, §4.6): it listens for
// Agent connections, negotiates tunnel-init, dials the requested
// destination (directly or through a downstream Proxy), and relays.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/cppla/tunnelmoto/config"
	"github.com/cppla/tunnelmoto/controller"
	"github.com/cppla/tunnelmoto/crypto"
	"github.com/cppla/tunnelmoto/pool"
	"github.com/cppla/tunnelmoto/utils"

	"go.uber.org/zap"
)

func main() {
	confPath := flag.String("config", "proxy.toml", "Path to proxy TOML config file")
	flag.Parse()

	if !config.FileExists(*confPath) {
		fmt.Printf("proxy: config file not found: %s\n", *confPath)
		os.Exit(1)
	}

	cfg, err := config.LoadProxyConfig(*confPath)
	if err != nil {
		fmt.Printf("proxy: %v\n", err)
		os.Exit(1)
	}
	config.GlobalProxyCfg = cfg
	runtime.GOMAXPROCS(cfg.WorkerThreads)

	logger := utils.NewLogger(cfg.Log.Level, cfg.Log.Path)
	defer logger.Sync()

	holder, err := crypto.LoadRSAHolder(cfg.RsaDir, "ProxyPrivateKey.pem", "AgentPublicKey.pem", logger)
	if err != nil {
		logger.Warn("some rsa key entries failed to load", zap.Error(err))
	}

	state := &controller.ProxyState{
		Logger:                logger,
		Holder:                holder,
		ConnectTimeout:        config.Seconds(5),
		ClientRelayBufferSize: cfg.Socket.ClientRelayBufferSize,
		ProxyRelayBufferSize:  cfg.Socket.ProxyRelayBufferSize,
	}

	if cfg.ForwardChainEnabled() {
		fwdHolder, err := crypto.LoadRSAHolder(cfg.ForwardRsaDir, "AgentPrivateKey.pem", "ProxyPublicKey.pem", logger)
		if err != nil {
			logger.Warn("some forward-chain rsa key entries failed to load", zap.Error(err))
		}
		fwdPoolCfg := &pool.Config{
			ProxyAddresses:       cfg.ForwardServerAddresses,
			ConnectTimeout:       config.Seconds(5),
			RetakeInterval:       time.Second,
			TCPKeepaliveInterval: 30 * time.Second,
		}
		state.Forward = &controller.ForwardState{
			Taker:     pool.NewUnpooledDialer(fwdPoolCfg),
			AuthToken: cfg.ForwardAuthToken,
			Holder:    fwdHolder,
		}
		logger.Info("forward-chaining enabled", zap.Strings("forward_server_addresses", cfg.ForwardServerAddresses))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("proxy starting", zap.String("addr", addr), zap.Int("worker_threads", cfg.WorkerThreads))

	for {
		if err := controller.ListenProxy(addr, state); err != nil {
			logger.Error("proxy listen failed, retrying", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		return
	}
}
