package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/model"
)

// RedisCache 封装 Redis 客户端
type RedisCache struct {
	client      *redis.Client
	snapshotTTL time.Duration
}

// NewRedisCache 创建 RedisCache 实例并测试连接
// 参数:
//   - cfg: Redis 配置
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, snapshotTTL: cfg.SnapshotTTL}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ==================== 快照缓存 ====================

func (c *RedisCache) GetSnapshot(ctx context.Context) (*model.StoredSnapshot, bool) {
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("redis snapshot read failed")
		}
		return nil, false
	}
	var snap model.StoredSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("discarding undecodable cached snapshot")
		return nil, false
	}
	return &snap, true
}

func (c *RedisCache) SetSnapshot(ctx context.Context, snap *model.StoredSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey, data, c.snapshotTTL).Err()
}

func (c *RedisCache) InvalidateSnapshot(ctx context.Context) error {
	return c.client.Del(ctx, snapshotKey).Err()
}

// ==================== JWT 黑名单 ====================

// BlacklistToken 将 Token 加入黑名单
// TTL 设为 token 剩余有效期，过期后自动删除
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, blacklistKey+tokenHash, "1", ttl).Err()
}

func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, blacklistKey+tokenHash).Val() > 0
}

// ==================== 变更事件 ====================

func (c *RedisCache) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, changesChannel, data).Err()
}

// SubscribeChanges 订阅 Redis 频道并解码事件
func (c *RedisCache) SubscribeChanges(ctx context.Context) (<-chan model.ChangeEvent, func(), error) {
	pubsub := c.client.Subscribe(ctx, changesChannel)
	// 等待订阅确认，确保之后发布的事件不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan model.ChangeEvent, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev model.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("invalid change event on redis channel")
				continue
			}
			select {
			case out <- ev:
			default:
				log.Warn().Str("revision", ev.Revision).Msg("change subscriber is slow, event dropped")
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }, nil
}
