package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/service"
)

// HealthHandler 健康检查
type HealthHandler struct {
	snapshotService *service.SnapshotService
}

// NewHealthHandler 创建 HealthHandler 实例
func NewHealthHandler(snapshotService *service.SnapshotService) *HealthHandler {
	return &HealthHandler{snapshotService: snapshotService}
}

// Health 进程存活且存储可达时返回 200，存储不可达返回 503
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.snapshotService.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("health check: store unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "ok"})
}
