// Package handler 提供 HTTP 请求处理器
// 处理器只负责参数解析和响应转换，业务规则都在 service 层
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/middleware"
	"powerhouse-manager/internal/service"
	"powerhouse-manager/pkg/response"
)

// AuthHandler 认证请求处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login 用户登录
// @Summary 用户登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.LoginRequest true "登录信息"
// @Success 200 {object} response.Response{data=service.LoginResponse}
// @Failure 401 {object} response.Response "data 为 {success:false}"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if apperr.IsAuth(err) {
			// 用户不存在和密码错误返回同样的结果
			response.ErrorWithData(c, http.StatusUnauthorized, response.CodeInvalidCredentials,
				apperr.Message(err), gin.H{"success": false})
			return
		}
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// Logout 用户登出
// @Summary 用户登出
// @Tags 认证
// @Security Bearer
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.GetToken(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}
