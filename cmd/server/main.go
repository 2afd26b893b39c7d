package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/blacklist"
	"webmail/backend/internal/config"
	"webmail/backend/internal/health"
	"webmail/backend/internal/logger"
	"webmail/backend/internal/middleware"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/service"
	"webmail/backend/internal/storage"
	"webmail/backend/internal/storage/memory"
	"webmail/backend/internal/storage/postgres"
	"webmail/backend/internal/storage/redis"
	httptransport "webmail/backend/internal/transport/http"
	"webmail/backend/internal/websocket"
)

// main 启动 webmail HTTP API 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Service:     "api",
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting webmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("blacklist", cfg.Blacklist.Address),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)
	healthChecker.AddBlacklist(cfg.Blacklist.Address, cfg.Blacklist.Timeout)

	// 令牌吊销：启用 Redis 时多实例共享，否则使用进程内吊销表
	var revoker storage.TokenRevoker
	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, &cfg.Redis, log.Named("redis"))
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		healthChecker.AddRedis(rdb)
		revoker = rdb
	} else {
		log.Info("redis disabled, revoked tokens are kept in memory")
		revoker = memory.NewStore()
	}

	// 黑名单客户端与投递闸门
	client := blacklist.NewClient(cfg.Blacklist.Address, cfg.Blacklist.Timeout, log)
	client.SetMetrics(metrics)
	gate := service.NewDeliveryGate(client, log)
	gate.SetMetrics(metrics)

	// 初始化服务层
	mailService := service.NewMailService(store, gate, log)
	mailService.SetMetrics(metrics)
	mailService.SetListLimit(cfg.Mail.ListLimit)
	if cfg.Mail.RequireRegisteredRecipient {
		mailService.SetDirectory(store)
	}
	labelService := service.NewLabelService(store, store, log)
	blacklistService := service.NewBlacklistService(client, log)

	authService := auth.NewService(store, revoker, auth.NewJWTManager(&cfg.JWT), log)
	authService.SetLabelInitializer(labelService)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
	)

	// 新邮件实时通知
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, authService, log.Named("websocket"))
	mailService.SetNotifier(wsHub)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, metrics)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:           cfg,
		AuthService:      authService,
		MailService:      mailService,
		LabelService:     labelService,
		BlacklistService: blacklistService,
		WebSocketHub:     wsHub,
		Health:           healthChecker,
		Metrics:          metrics,
		RateLimiter:      rateLimiter,
		Logger:           log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 清理空闲的限流记录
	group.Go(func() error {
		rateLimiter.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}

// openStore 根据配置选择存储：配置了数据库时使用 GORM，否则使用内存存储
func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Warn("using memory storage (development mode), data is lost on restart")
		return memory.NewStore(), nil
	}
	store, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}
