// Package service 提供业务逻辑层的实现
// 服务层协调快照存储、缓存、对象存储和指标
package service

import (
	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/model"
)

// Actor 发起请求的已认证用户
// 由认证中间件从 JWT 声明中构造
type Actor struct {
	Username   string
	Role       model.Role
	Powerhouse string
}

// IsAdmin 是否为管理员
func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// CanSee 是否可以查看指定电站
func (a Actor) CanSee(powerhouse string) bool {
	return a.IsAdmin() || a.Powerhouse == powerhouse
}

// requireAdmin 非管理员返回 Forbidden
func requireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return apperr.Forbidden("admin role required")
	}
	return nil
}
