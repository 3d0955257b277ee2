// Package cache 提供快照缓存、JWT 黑名单和变更事件广播
// 启用 Redis 时多个服务实例共享同一份缓存和事件通道，否则使用进程内实现
package cache

import (
	"context"
	"time"

	"powerhouse-manager/internal/model"
)

// Cache 服务层依赖的缓存能力
type Cache interface {
	// GetSnapshot 读取缓存的快照，未命中或出错都返回 false
	GetSnapshot(ctx context.Context) (*model.StoredSnapshot, bool)
	SetSnapshot(ctx context.Context, snap *model.StoredSnapshot) error
	InvalidateSnapshot(ctx context.Context) error

	// BlacklistToken 把 token 摘要加入黑名单直到 expireAt
	BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool

	// PublishChange 广播快照替换事件
	PublishChange(ctx context.Context, ev model.ChangeEvent) error
	// SubscribeChanges 订阅变更事件，调用返回的函数取消订阅
	SubscribeChanges(ctx context.Context) (<-chan model.ChangeEvent, func(), error)

	Ping(ctx context.Context) error
	Close() error
}

const (
	snapshotKey    = "phm:snapshot"
	blacklistKey   = "phm:jwt:blacklist:"
	changesChannel = "phm:snapshot:changes"
)
