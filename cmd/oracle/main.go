package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"webmail/backend/internal/blacklist"
	"webmail/backend/internal/config"
	"webmail/backend/internal/logger"
)

// main 启动内置的黑名单服务，供本地开发和测试使用。
func main() {
	cfg, err := config.LoadOracle()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(logger.Config{
		Service:     "oracle",
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := blacklist.NewServer(blacklist.ServerConfig{
		BloomSize:   cfg.Oracle.BloomSize,
		BloomHashes: cfg.Oracle.BloomHashes,
		Seeds:       cfg.Oracle.Seeds,
	}, log)

	log.Info("starting blacklist oracle",
		zap.String("address", cfg.Oracle.BindAddr),
		zap.Int("bloom_size", cfg.Oracle.BloomSize),
		zap.Int("seeds", len(cfg.Oracle.Seeds)),
	)
	if err := server.ListenAndServe(ctx, cfg.Oracle.BindAddr); err != nil {
		log.Fatal("blacklist oracle stopped", zap.Error(err))
	}
	log.Info("blacklist oracle exited cleanly")
}
