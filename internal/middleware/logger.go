package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/metrics"
	"powerhouse-manager/pkg/response"
)

// LoggerMiddleware 创建请求日志中间件
// 每个请求输出一行结构化日志，按状态码选择级别：
// 5xx 为 error，4xx 为 warn，其余为 info
// 查询参数可能携带 token，因此只记录路径
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Warn()
		default:
			ev = log.Info()
		}

		ev = ev.
			Int("status", status).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start))
		if actor := GetActor(c); actor.Username != "" {
			ev = ev.Str("user", actor.Username)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			ev = ev.Str("error", errs)
		}
		ev.Msg("request")
	}
}

// RecoveryMiddleware 创建 panic 恢复中间件
// 捕获处理器中的 panic，记录日志后返回 500
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("handler panicked")
				response.InternalError(c, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// MetricsMiddleware 记录请求耗时
// route 使用注册的路由模板，未匹配的请求归为 "unmatched"
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
