// Package server 组装服务层、处理器和路由
// cmd/server 和端到端测试共用同一套组装逻辑
package server

import (
	"context"

	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/blob"
	"powerhouse-manager/internal/cache"
	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/handler"
	"powerhouse-manager/internal/metrics"
	"powerhouse-manager/internal/middleware"
	"powerhouse-manager/internal/repository"
	"powerhouse-manager/internal/service"
	"powerhouse-manager/internal/websocket"
	"powerhouse-manager/pkg/jwt"
)

// Deps 外部依赖
// Blob 可以为 nil，此时备份和归档关闭
type Deps struct {
	Config  *config.Config
	Store   repository.SnapshotStore
	Cache   cache.Cache
	Blob    blob.Store
	Metrics *metrics.Metrics
}

// Server 组装好的服务
type Server struct {
	Router    *gin.Engine
	Hub       *websocket.Hub
	Snapshots *service.SnapshotService
	Auth      *service.AuthService
	Accounts  *service.AccountService
	Backups   *service.BackupService

	cfg *config.Config
}

// New 创建服务层、处理器并注册路由
func New(d Deps) *Server {
	cfg := d.Config
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpire)

	backups := service.NewBackupService(d.Blob, cfg.Blob.BackupKeep)
	snapshots := service.NewSnapshotService(d.Store, d.Cache, backups, d.Metrics)
	auth := service.NewAuthService(snapshots, d.Cache, jwtService, d.Metrics)
	accounts := service.NewAccountService(snapshots, backups)

	s := &Server{
		Hub:       websocket.NewHub(d.Cache),
		Snapshots: snapshots,
		Auth:      auth,
		Accounts:  accounts,
		Backups:   backups,
		cfg:       cfg,
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.MetricsMiddleware(d.Metrics))
	router.Use(middleware.CORSMiddleware(cfg.Server.CORS))

	s.registerRoutes(router, d.Metrics)
	s.Router = router
	return s
}

// Bootstrap 确保引导管理员存在
func (s *Server) Bootstrap(ctx context.Context) error {
	_, err := s.Snapshots.EnsureAdmin(ctx, s.cfg.Bootstrap.AdminUsername, s.cfg.Bootstrap.AdminPassword)
	return err
}

// registerRoutes 注册所有路由
func (s *Server) registerRoutes(router *gin.Engine, m *metrics.Metrics) {
	authHandler := handler.NewAuthHandler(s.Auth)
	snapshotHandler := handler.NewSnapshotHandler(s.Snapshots, s.cfg.Server.MaxBodyBytes)
	accountHandler := handler.NewAccountHandler(s.Accounts)
	backupHandler := handler.NewBackupHandler(s.Backups, s.Snapshots)
	healthHandler := handler.NewHealthHandler(s.Snapshots)
	wsHandler := websocket.NewHandler(s.Hub)

	requireAuth := middleware.AuthMiddleware(s.Auth)
	requireAdmin := middleware.RequireAdmin()

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := router.Group("/api/v1")

	// 认证相关
	auth := v1.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", requireAuth, authHandler.Logout)
	}

	// 以下均需要登录
	authed := v1.Group("")
	authed.Use(requireAuth)
	{
		authed.GET("/snapshot", snapshotHandler.Load)
		authed.PUT("/snapshot", snapshotHandler.Replace)
		authed.GET("/powerhouses", snapshotHandler.Powerhouses)
		authed.GET("/accounts/search/:powerhouse/:id", accountHandler.Search)
	}

	// 管理员
	admin := v1.Group("")
	admin.Use(requireAuth, requireAdmin)
	{
		admin.GET("/users", snapshotHandler.Users)
		admin.GET("/accounts/export", accountHandler.Export)
		admin.POST("/accounts/export/archive", accountHandler.Archive)
		admin.GET("/backups", backupHandler.List)
		admin.POST("/backups/restore", backupHandler.Restore)
	}

	// WebSocket：token 通过查询参数传递
	router.GET("/ws/changes", requireAuth, wsHandler.HandleChanges)
}
