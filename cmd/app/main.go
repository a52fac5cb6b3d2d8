package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ifeelsam/core-bet/internal/chain"
	"github.com/ifeelsam/core-bet/internal/config"
	"github.com/ifeelsam/core-bet/internal/game"
	httpServer "github.com/ifeelsam/core-bet/internal/http"
	"github.com/ifeelsam/core-bet/internal/http/handlers"
	"github.com/ifeelsam/core-bet/internal/logger"
	"github.com/ifeelsam/core-bet/internal/repository"
	"github.com/ifeelsam/core-bet/internal/service"
	"github.com/ifeelsam/core-bet/internal/ws"
	"github.com/jonboulle/clockwork"
)

// Version устанавливается при сборке
var Version = "dev"

// backend все, что движок берет у сети
type backend struct {
	reader  service.StatusReader
	tx      service.Transactor
	wallets service.WalletProvider
	info    handlers.ChainInfo
	close   func()
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.JSONLogs())
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	be, err := connect(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("chain connect failed", "error", err)
	}
	defer be.close()

	clock := clockwork.NewRealClock()
	audit := service.NewAuditService(clock)
	mines := service.NewMinesService(be.reader, be.tx, be.wallets, audit, service.Options{
		Odds: game.NewOdds(cfg.HouseEdge),
		Sync: service.SyncConfig{
			CacheDuration:  cfg.CacheDuration,
			DebounceWindow: cfg.DebounceWindow,
			MinLoading:     cfg.MinLoading,
			RemoteTimeout:  cfg.RemoteTimeout,
		},
		PollInterval:  cfg.PollInterval,
		SettleDelay:   cfg.SettleDelay,
		SettleRetries: cfg.SettleRetries,
		Clock:         clock,
	})
	defer mines.Close()

	// redis опционален: без него работает только локальный кэш
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := repository.ConnectRedis(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, shared snapshot cache disabled", "error", err)
		} else {
			defer client.Close()
			mines.SetCache(repository.NewSnapshotCache(client, be.info.ChainID, cfg.CacheDuration))
			log.Info("shared snapshot cache enabled")
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), cfg.RemoteTimeout)
	view, err := mines.Bind(ctx)
	cancel()
	if err != nil {
		// без первого снапшота сервер все равно поднимается, следующее чтение повторит попытку
		log.Error("initial state read failed", "error", err)
	} else {
		log.Info("wallet bound", "phase", view.Phase, "source", view.Source)
	}

	hub := ws.NewHub(mines)
	hub.Start()
	defer hub.Stop()

	if !cfg.JSONLogs() && cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpServer.CORS(cfg.AllowedOrigin))
	httpServer.RegisterRoutes(r, handlers.New(mines, be.info, Version), ws.NewWSHandler(hub, cfg.AllowedOrigin).HandleWS())

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version, "chain_id", be.info.ChainID, "simulated", be.info.Simulated)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

// connect поднимает RPC клиент и кошелек или симулятор контракта
func connect(ctx context.Context, cfg config.Config) (*backend, error) {
	log := logger.Component("chain")

	if cfg.Simulate {
		sim := chain.NewSimulator(
			chain.WithBalance(cfg.SimBalance),
			chain.WithConfirmDelay(cfg.SimConfirmDelay),
		)
		log.Warn("chain: SIMULATE=true, транзакции не уходят в сеть", "player", sim.Address().Hex())
		return &backend{
			reader:  sim,
			tx:      sim,
			wallets: sim,
			info:    handlers.ChainInfo{ChainID: chain.ChainIDCoreTestnet2, Symbol: chain.NativeSymbol, Simulated: true},
			close:   func() {},
		}, nil
	}

	contract, err := chain.NormalizeAddress(cfg.ContractAddress)
	if err != nil {
		return nil, err
	}
	client, err := chain.Dial(ctx, cfg.RPCURL, contract, cfg.ChainID)
	if err != nil {
		return nil, err
	}
	wallet, err := chain.NewWallet(client, cfg.PrivateKey)
	if err != nil {
		client.Close()
		return nil, err
	}

	explorer := chain.ExplorerCoreTestnet2
	if cfg.ChainID == chain.ChainIDCoreTestnet {
		explorer = chain.ExplorerCoreTestnet
	}
	log.Info("chain: connected", "rpc", cfg.RPCURL, "chain_id", cfg.ChainID, "contract", contract.Hex(), "player", wallet.Address().Hex())

	return &backend{
		reader:  client,
		tx:      wallet,
		wallets: wallet,
		info: handlers.ChainInfo{
			ChainID:     cfg.ChainID,
			Contract:    contract.Hex(),
			ExplorerURL: explorer,
			Symbol:      chain.NativeSymbol,
		},
		close: client.Close,
	}, nil
}
