// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、角色校验、CORS 跨域、日志和指标
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/service"
	"powerhouse-manager/pkg/response"
)

const (
	actorKey = "actor"
	tokenKey = "token"
)

// AuthMiddleware 创建 JWT 认证中间件
// 验证请求头中的 Bearer Token（websocket 握手时允许使用 token 查询参数），
// 并将当前用户存入上下文
// 参数:
//   - authService: 认证服务，负责校验签名、过期时间和黑名单
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}

		actor, err := authService.Authenticate(c.Request.Context(), tokenString)
		if apperr.IsStoreUnavailable(err) {
			response.FromError(c, err)
			c.Abort()
			return
		}
		if err != nil {
			response.Unauthorized(c, "token is invalid or expired")
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Set(tokenKey, tokenString) // 登出时计算摘要
		c.Next()
	}
}

// bearerToken 解析 "Bearer <token>"，没有请求头时退回到查询参数
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		t := c.Query("token")
		return t, t != ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequireAdmin 只允许管理员继续
// 必须挂在 AuthMiddleware 之后
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetActor(c).IsAdmin() {
			response.Forbidden(c, "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor 从上下文获取当前用户
// 未认证时返回零值
func GetActor(c *gin.Context) service.Actor {
	v, exists := c.Get(actorKey)
	if !exists {
		return service.Actor{}
	}
	return v.(service.Actor)
}

// GetToken 从上下文获取原始 token
func GetToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
