// Package repository 提供快照存储的实现
// 对外只暴露整库粒度的两个操作：LoadAll 和 ReplaceAll
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/model"
)

// SnapshotStore 快照存储
// ReplaceAll 在一次持久化操作中删除全部用户和电站再写入新数组，失败时旧数据保持不变
type SnapshotStore interface {
	// LoadAll 返回全部用户（按 username 排序）和电站（按 name 排序）
	LoadAll(ctx context.Context) (*model.StoredSnapshot, error)
	// ReplaceAll 整体替换用户和电站
	ReplaceAll(ctx context.Context, users []model.StoredUser, powerhouses []model.Powerhouse) error
	// Ping 检查存储是否可达
	Ping(ctx context.Context) error
	Close() error
}

// Open 根据配置创建存储
// 参数:
//   - ctx: 用于首次连接和建表
//   - cfg: 存储配置
//
// 返回:
//   - SnapshotStore: 存储实例
//   - error: 连接失败返回 StoreUnavailable
func Open(ctx context.Context, cfg config.StoreConfig) (SnapshotStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.DSN)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, cfg.Postgres)
	case "mysql":
		return NewMySQLStore(ctx, cfg.MySQL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// PrepareReplace 校验并整理待写入的数据，所有驱动在写入前都会调用
//   - users / powerhouses 为 nil 视为格式错误
//   - 用户名为空的用户被丢弃；重复用户名只保留第一次出现的
//   - 电站名称为空或重复视为格式错误
//   - 同一电站内账户 ID 重复视为格式错误，(id, powerhouse) 全局唯一
//   - 子序列的 nil 统一成空数组
func PrepareReplace(users []model.StoredUser, powerhouses []model.Powerhouse) ([]model.StoredUser, []model.Powerhouse, error) {
	if users == nil || powerhouses == nil {
		return nil, nil, apperr.Validation("users and powerhouses must be arrays")
	}

	seen := make(map[string]bool, len(users))
	outUsers := make([]model.StoredUser, 0, len(users))
	for _, u := range users {
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" || seen[u.Username] {
			continue
		}
		if !u.Role.Valid() {
			return nil, nil, apperr.Validation("user %q has invalid role %q", u.Username, u.Role)
		}
		seen[u.Username] = true
		outUsers = append(outUsers, u)
	}

	names := make(map[string]bool, len(powerhouses))
	outPhs := make([]model.Powerhouse, 0, len(powerhouses))
	for _, p := range powerhouses {
		p = p.Clone()
		if strings.TrimSpace(p.Name) == "" {
			return nil, nil, apperr.Validation("powerhouse name must not be empty")
		}
		if names[p.Name] {
			return nil, nil, apperr.Validation("duplicate powerhouse %q", p.Name)
		}
		names[p.Name] = true
		ids := make(map[string]bool, len(p.Accounts))
		for _, acc := range p.Accounts {
			if ids[acc.ID] {
				return nil, nil, apperr.Validation("duplicate account %q in powerhouse %q", acc.ID, p.Name)
			}
			ids[acc.ID] = true
		}
		p.Normalize()
		outPhs = append(outPhs, p)
	}
	return outUsers, outPhs, nil
}

// sortSnapshot 按名称排序，保证各驱动返回顺序一致
func sortSnapshot(s *model.StoredSnapshot) {
	if s.Users == nil {
		s.Users = []model.StoredUser{}
	}
	if s.Powerhouses == nil {
		s.Powerhouses = []model.Powerhouse{}
	}
	sort.SliceStable(s.Users, func(i, j int) bool { return s.Users[i].Username < s.Users[j].Username })
	sort.SliceStable(s.Powerhouses, func(i, j int) bool { return s.Powerhouses[i].Name < s.Powerhouses[j].Name })
	for i := range s.Powerhouses {
		s.Powerhouses[i].Normalize()
	}
}
