// Package response 提供统一的 HTTP 响应格式
// 所有 API 都使用相同的响应结构，便于客户端处理
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"powerhouse-manager/internal/apperr"
)

// Response 统一响应结构
// code: 业务状态码（0 表示成功）
// message: 提示信息
// data: 响应数据
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// 业务状态码定义
const (
	CodeSuccess            = 0    // 成功
	CodeBadRequest         = 1000 // 请求参数错误
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeInternalError      = 1004 // 服务器内部错误
	CodeStoreUnavailable   = 1005 // 存储不可用
	CodeBodyTooLarge       = 1006 // 请求体超过上限
	CodeInvalidCredentials = 1103 // 用户名或密码错误（不区分）
)

// Success 返回成功响应
// 参数:
//   - c: Gin 上下文
//   - data: 响应数据，可以是任意类型
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// ErrorWithCode 返回错误响应（带业务状态码）
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// ErrorWithData 返回错误响应并附带数据
// 登录失败时返回 {success:false}
func ErrorWithData(c *gin.Context, httpCode, bizCode int, message string, data interface{}) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
		Data:    data,
	})
}

// BadRequest 返回 400 错误（请求参数错误）
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized 返回 401 错误（未授权）
func Unauthorized(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden 返回 403 错误（禁止访问）
func Forbidden(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusForbidden, CodeForbidden, message)
}

// NotFound 返回 404 错误（资源不存在）
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusNotFound, CodeNotFound, message)
}

// InternalError 返回 500 错误（服务器内部错误）
func InternalError(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusInternalServerError, CodeInternalError, message)
}

// Status 返回错误种类对应的 HTTP 状态码和业务码
func Status(err error) (httpCode, bizCode int) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, CodeBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case apperr.KindAuth:
		return http.StatusUnauthorized, CodeInvalidCredentials
	case apperr.KindForbidden:
		return http.StatusForbidden, CodeForbidden
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// FromError 把业务错误转换成统一响应
// 持久层和内部错误的细节不会返回给调用方
func FromError(c *gin.Context, err error) {
	httpCode, bizCode := Status(err)
	ErrorWithCode(c, httpCode, bizCode, apperr.Message(err))
}
