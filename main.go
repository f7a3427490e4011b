package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parkey-onchain/config"
	balanceGateway "parkey-onchain/gateway/balance"
	"parkey-onchain/gateway/cache"
	contractGateway "parkey-onchain/gateway/contract"
	"parkey-onchain/gateway/wallet"
	contractHandler "parkey-onchain/handler/contract"
	walletHandler "parkey-onchain/handler/wallet"
	contractUsecase "parkey-onchain/usecase/contract"
	"parkey-onchain/usecase/notify"
	"parkey-onchain/usecase/session"
	"parkey-onchain/usecase/tracker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	// --- 1. 初期設定 ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Crit("Failed to load configuration", "err", err)
	}
	log.SetDefault(config.NewLogger(cfg.Logging, os.Stderr))
	if err := cfg.Validate(); err != nil {
		log.Crit("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. ethclientの初期化 ---
	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Crit("Failed to connect to network", "url", cfg.Chain.RPCURL, "err", err)
	}
	defer client.Close()
	log.Info("Connected to network (HTTP)", "chainId", cfg.Chain.ChainID)

	// WebSocket接続でイベント購読
	eventClient := client
	if cfg.Chain.WSURL != "" {
		wsClient, err := ethclient.Dial(cfg.Chain.WSURL)
		if err != nil {
			// HTTP clientでコントラクト機能は使用可能
			log.Warn("Failed to connect WebSocket for events", "err", err)
		} else {
			defer wsClient.Close()
			eventClient = wsClient
			log.Info("Connected to network (WebSocket for events)")
		}
	}

	// --- 3. 通知とセッション ---
	notifier := notify.NewBus(cfg.Notify.DismissAfter)

	var signer wallet.Signer
	if cfg.Signer.PrivateKey != "" {
		keySigner, err := wallet.NewKeySigner(client, cfg.Signer.PrivateKey, nil)
		if err != nil {
			log.Crit("Failed to load signing key", "err", err)
		}
		signer = keySigner
	} else {
		log.Warn("SIGNER_PRIVATE_KEY not set. Wallet connect will report no provider.")
	}
	provider := session.NewProvider(signer, notifier)
	defer provider.Close()

	// --- 4. 出品キャッシュ ---
	var listingCache cache.ListingCache = cache.NewMemoryListingCache(cfg.Cache.ListingTTL)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		redisCache := cache.NewRedisListingCache(rdb, cfg.Cache.ListingTTL)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("Redis unavailable, using in-memory listing cache", "addr", cfg.Redis.Addr, "err", err)
		} else {
			listingCache = redisCache
			log.Info("Listing cache backed by Redis", "addr", cfg.Redis.Addr)
		}
	}

	// --- 5. Contract機能の依存性注入 ---
	ctGateway, err := contractGateway.NewParkeyContractGateway(eventClient, cfg.Chain.ContractAddress)
	if err != nil {
		log.Crit("Failed to initialize contract gateway", "err", err)
	}
	log.Info("Parkey contract", "address", cfg.Chain.ContractAddress)

	txTracker := tracker.New(client, notifier, tracker.Config{
		Horizon:      cfg.Tracker.Horizon,
		PollInterval: cfg.Tracker.PollInterval,
	})
	contractUC := contractUsecase.NewContractUsecase(provider, ctGateway, txTracker, listingCache, notifier, cfg.Chain.ChainID)

	// イベントリスナーを開始
	if err := contractUC.StartEventListener(ctx); err != nil {
		log.Warn("Failed to start event listener", "err", err)
	}

	contractHdlr := contractHandler.NewContractHandler(contractUC, common.HexToAddress(cfg.Chain.ContractAddress))
	walletHdlr := walletHandler.NewWalletHandler(provider, balanceGateway.NewEthGateway(client), notifier)

	// --- 6. ルーティングの設定 ---
	router := mux.NewRouter()

	// ヘルスチェック用エンドポイント
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	walletHdlr.Register(api)
	contractHdlr.Register(api)

	// --- 7. CORSミドルウェアの設定 ---
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// --- 8. サーバー起動 ---
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: c.Handler(router),
	}

	go func() {
		log.Info("Parkey onchain service starting", "port", cfg.Server.Port)
		log.Info("Available endpoints",
			"wallet", "GET /api/v1/wallet/session, POST /api/v1/wallet/connect, POST /api/v1/wallet/disconnect",
			"listings", "POST /api/v1/listings, POST /api/v1/listings/{tokenId}/buy, PUT /api/v1/listings/{tokenId}/price, GET /api/v1/listings/{tokenId}",
			"reads", "GET /api/v1/owners/{address}/tokens, GET /api/v1/accounts/{address}/balance",
			"transactions", "GET /api/v1/transactions/pending, GET /api/v1/transactions/{hash}",
			"other", "GET /api/v1/notifications, GET /api/v1/contract/info, GET /metrics, GET /health",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Crit("could not start server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	// 送信済みトランザクションの待機中でもハンドラを打ち切らない
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Tracker.Horizon+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "err", err)
	}
}
