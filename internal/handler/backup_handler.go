package handler

import (
	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/middleware"
	"powerhouse-manager/internal/service"
	"powerhouse-manager/pkg/response"
)

// BackupHandler 快照备份处理器（管理员）
type BackupHandler struct {
	backupService   *service.BackupService
	snapshotService *service.SnapshotService
}

// NewBackupHandler 创建 BackupHandler 实例
func NewBackupHandler(backupService *service.BackupService, snapshotService *service.SnapshotService) *BackupHandler {
	return &BackupHandler{backupService: backupService, snapshotService: snapshotService}
}

// RestoreRequest 恢复请求
type RestoreRequest struct {
	Key string `json:"key" binding:"required"` // 备份对象 key
}

// List 备份列表，最新的在前
// @Router /api/v1/backups [get]
func (h *BackupHandler) List(c *gin.Context) {
	list, err := h.backupService.List(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// Restore 用备份替换全部数据
// @Router /api/v1/backups/restore [post]
func (h *BackupHandler) Restore(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.snapshotService.Restore(c.Request.Context(), middleware.GetActor(c), req.Key); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
