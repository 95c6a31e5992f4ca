// Command agent runs the Agent process (§4.1, §4.4): it listens on a
// local port, accepts SOCKS5/HTTP client connections, and tunnels their
// traffic to a Proxy over the pooled, encrypted wire protocol.
package main

import (
	"context"
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
	confPath := flag.String("config", "agent.toml", "Path to agent TOML config file")
	flag.Parse()

	if !config.FileExists(*confPath) {
		fmt.Printf("agent: config file not found: %s\n", *confPath)
		os.Exit(1)
	}

	cfg, err := config.LoadAgentConfig(*confPath)
	if err != nil {
		fmt.Printf("agent: %v\n", err)
		os.Exit(1)
	}
	config.GlobalAgentCfg = cfg
	runtime.GOMAXPROCS(cfg.WorkerThreads)

	logger := utils.NewLogger(cfg.Log.Level, cfg.Log.Path)
	defer logger.Sync()

	holder, err := crypto.LoadRSAHolder(cfg.RsaDir, "AgentPrivateKey.pem", "ProxyPublicKey.pem", logger)
	if err != nil {
		logger.Warn("some rsa key entries failed to load", zap.Error(err))
	}

	poolCfg := &pool.Config{
		ProxyAddresses:       cfg.ProxyAddresses,
		CheckInterval:        config.Seconds(cfg.Pool.CheckInterval),
		MaxLifetime:          config.Seconds(cfg.Pool.MaxLifetime),
		PingPongReadTimeout:  config.Seconds(cfg.Pool.PingPongReadTimeout),
		ConnectTimeout:       config.Seconds(cfg.Pool.ConnectTimeout),
		RetakeInterval:       config.Seconds(cfg.Pool.RetakeInterval),
		StartCheckTimer:      cfg.Pool.StartCheckTimer,
		CheckTimerInterval:   config.Seconds(cfg.Pool.CheckTimerInterval),
		TCPKeepaliveInterval: config.Seconds(cfg.Socket.TCPKeepaliveInterval),
		TCPKeepaliveTime:     config.Seconds(cfg.Socket.TCPKeepaliveTime),
		TCPKeepaliveRetry:    cfg.Socket.TCPKeepaliveRetry,
		ReadTimeout:          config.Seconds(cfg.Socket.ReadTimeout),
		WriteTimeout:         config.Seconds(cfg.Socket.WriteTimeout),
		SocketSendBufferSize: cfg.Socket.SendBufferSize,
		SocketRecvBufferSize: cfg.Socket.ReceiveBufferSize,
	}
	if cfg.Pool.Size != nil {
		poolCfg.MaxPoolSize = *cfg.Pool.Size
		if cfg.Pool.FillIntervalSeconds != nil {
			d := config.Seconds(*cfg.Pool.FillIntervalSeconds)
			poolCfg.FillInterval = &d
		}
	}

	var taker pool.Taker
	ctx := context.Background()
	if cfg.Pool.Size != nil {
		taker = pool.New(ctx, poolCfg, holder, logger)
	} else {
		taker = pool.NewUnpooledDialer(poolCfg)
	}

	state := &controller.AgentState{
		Logger:                logger,
		Taker:                 taker,
		AuthToken:             cfg.AuthToken,
		Holder:                holder,
		ClientRelayBufferSize: cfg.Socket.ClientRelayBufferSize,
		ProxyRelayBufferSize:  cfg.Socket.ProxyRelayBufferSize,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("agent starting", zap.String("addr", addr), zap.Int("worker_threads", cfg.WorkerThreads))

	for {
		if err := controller.ListenAgent(addr, state); err != nil {
			logger.Error("agent listen failed, retrying", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		return
	}
}
