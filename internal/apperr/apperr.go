// Package apperr 定义业务错误分类
// 所有层（store / service / handler / client）共用同一套错误种类，
// 在请求边界统一转换成结构化响应
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误种类
type Kind int

const (
	// KindInternal 未分类的内部错误
	KindInternal Kind = iota
	// KindValidation 载荷格式错误、必填字段为空
	KindValidation
	// KindNotFound 查找的电站 / 账户 / 用户不存在
	KindNotFound
	// KindStoreUnavailable 持久层不可达
	KindStoreUnavailable
	// KindAuth 凭据错误（不区分用户名和密码）
	KindAuth
	// KindForbidden 角色无权执行该操作
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error 业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error // 底层错误，可为空
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrInvalidCredentials 登录失败时唯一返回的错误
// 用户不存在和密码错误必须返回同一个值
var ErrInvalidCredentials = &Error{Kind: KindAuth, Message: "invalid credentials"}

// Validation 创建参数校验错误
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound 创建资源不存在错误
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden 创建越权错误
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Unavailable 包装持久层错误
// 参数:
//   - op: 失败的操作名，如 "load snapshot"
//   - err: 驱动返回的原始错误
func Unavailable(op string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Message: op + " failed: store unavailable", Err: err}
}

// KindOf 返回错误种类，非 *Error 一律视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsValidation 是否为参数错误
func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

// IsNotFound 是否为资源不存在
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsStoreUnavailable 是否为持久层不可用
func IsStoreUnavailable(err error) bool { return err != nil && KindOf(err) == KindStoreUnavailable }

// IsAuth 是否为凭据错误
func IsAuth(err error) bool { return err != nil && KindOf(err) == KindAuth }

// IsForbidden 是否为越权
func IsForbidden(err error) bool { return err != nil && KindOf(err) == KindForbidden }

// Message 返回可展示给调用方的信息
// 内部错误不暴露细节
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindStoreUnavailable {
			return "store unavailable"
		}
		return e.Message
	}
	return "internal error"
}
