package handler

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/middleware"
	"powerhouse-manager/internal/service"
	"powerhouse-manager/pkg/response"
)

// AccountHandler 账户查询与导出处理器
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler 创建 AccountHandler 实例
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// Search 在电站内按 ID 查找账户
// @Summary 查找账户
// @Tags 账户
// @Security Bearer
// @Param powerhouse path string true "电站名称"
// @Param id path string true "账户 ID"
// @Success 200 {object} response.Response{data=service.SearchResult}
// @Router /api/v1/accounts/search/{powerhouse}/{id} [get]
func (h *AccountHandler) Search(c *gin.Context) {
	res, err := h.accountService.Search(c.Request.Context(), middleware.GetActor(c), c.Param("powerhouse"), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// Export 下载全部账户的 CSV
// 先写入缓冲区，出错时仍可返回 JSON 错误
// @Router /api/v1/accounts/export [get]
func (h *AccountHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.accountService.ExportCSV(c.Request.Context(), middleware.GetActor(c), &buf); err != nil {
		response.FromError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="accounts.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Archive 把 CSV 归档到对象存储
// @Router /api/v1/accounts/export/archive [post]
func (h *AccountHandler) Archive(c *gin.Context) {
	info, err := h.accountService.ArchiveCSV(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, info)
}
