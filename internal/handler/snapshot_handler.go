package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/middleware"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/internal/service"
	"powerhouse-manager/pkg/response"
)

// SnapshotHandler 全量快照请求处理器
type SnapshotHandler struct {
	snapshotService *service.SnapshotService
	maxBodyBytes    int64
}

// NewSnapshotHandler 创建 SnapshotHandler 实例
// maxBodyBytes 限制 PUT 请求体大小，<= 0 时不限制
func NewSnapshotHandler(snapshotService *service.SnapshotService, maxBodyBytes int64) *SnapshotHandler {
	return &SnapshotHandler{snapshotService: snapshotService, maxBodyBytes: maxBodyBytes}
}

// Load 读取全量快照
// @Summary 读取当前用户可见的全部用户和电站
// @Tags 快照
// @Security Bearer
// @Success 200 {object} response.Response{data=model.Snapshot}
// @Router /api/v1/snapshot [get]
func (h *SnapshotHandler) Load(c *gin.Context) {
	snap, err := h.snapshotService.LoadAll(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, snap)
}

// Replace 整体替换快照
// @Summary 用提交的 users 和 powerhouses 替换存储中的全部数据
// @Tags 快照
// @Security Bearer
// @Accept json
// @Param body body model.Snapshot true "全量快照"
// @Success 200 {object} response.Response "data 为 {ok:true}"
// @Router /api/v1/snapshot [put]
func (h *SnapshotHandler) Replace(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ErrorWithCode(c, http.StatusRequestEntityTooLarge, response.CodeBodyTooLarge, "request body too large")
			return
		}
		response.BadRequest(c, "cannot read request body")
		return
	}
	snap, err := model.DecodeSnapshot(body)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if err := h.snapshotService.ReplaceAll(c.Request.Context(), middleware.GetActor(c), snap); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// Users 用户列表（管理员）
// @Router /api/v1/users [get]
func (h *SnapshotHandler) Users(c *gin.Context) {
	users, err := h.snapshotService.Users(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, users)
}

// Powerhouses 当前用户可见的电站
// @Router /api/v1/powerhouses [get]
func (h *SnapshotHandler) Powerhouses(c *gin.Context) {
	phs, err := h.snapshotService.Powerhouses(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, phs)
}
