// Package main 是服务端的入口点
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/blob"
	"powerhouse-manager/internal/cache"
	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/logger"
	"powerhouse-manager/internal/metrics"
	"powerhouse-manager/internal/repository"
	"powerhouse-manager/internal/server"
)

func main() {
	configDir := "./configs"
	if dir := os.Getenv("PHM_CONFIG_DIR"); dir != "" {
		configDir = dir
	}

	// 加载配置
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化快照存储，启动时不可达视为致命错误
	store, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open snapshot store")
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Store.Driver).Msg("snapshot store ready")

	// 初始化缓存
	snapCache, err := initCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis")
	}
	defer snapCache.Close()

	// 初始化对象存储
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Blob.Driver).Msg("failed to init blob store")
	}
	if blobs == nil {
		log.Info().Msg("blob store disabled, backups and archives are off")
	}

	srv := server.New(server.Deps{
		Config:  cfg,
		Store:   store,
		Cache:   snapCache,
		Blob:    blobs,
		Metrics: metrics.New(),
	})
	if err := srv.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin user")
	}

	if err := srv.Hub.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe change feed")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// 优雅关闭
	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

// initCache 启用 Redis 时使用 Redis，否则使用进程内缓存
func initCache(cfg config.RedisConfig) (cache.Cache, error) {
	if !cfg.Enabled {
		return cache.NewMemoryCache(cfg.SnapshotTTL), nil
	}
	rc, err := cache.NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.Addr()).Msg("redis connected")
	return rc, nil
}
