package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/model"
)

// MemoryCache 进程内实现，未启用 Redis 时使用
// 快照缓存同样有 TTL；事件只在本进程内分发
type MemoryCache struct {
	mu          sync.Mutex
	snapshot    *model.StoredSnapshot
	snapshotExp time.Time
	ttl         time.Duration
	blacklist   map[string]time.Time
	subscribers map[int]chan model.ChangeEvent
	nextID      int
	now         func() time.Time
}

// NewMemoryCache 创建进程内缓存，ttl <= 0 表示不缓存快照
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:         ttl,
		blacklist:   make(map[string]time.Time),
		subscribers: make(map[int]chan model.ChangeEvent),
		now:         time.Now,
	}
}

func (c *MemoryCache) GetSnapshot(ctx context.Context) (*model.StoredSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil || c.now().After(c.snapshotExp) {
		return nil, false
	}
	return c.snapshot.Clone(), true
}

func (c *MemoryCache) SetSnapshot(ctx context.Context, snap *model.StoredSnapshot) error {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.snapshot = snap.Clone()
	c.snapshotExp = c.now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) InvalidateSnapshot(ctx context.Context) error {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !expireAt.After(now) {
		return nil
	}
	// 顺便清理已过期的条目
	for k, exp := range c.blacklist {
		if !exp.After(now) {
			delete(c.blacklist, k)
		}
	}
	c.blacklist[tokenHash] = expireAt
	return nil
}

func (c *MemoryCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.blacklist[tokenHash]
	return ok && exp.After(c.now())
}

func (c *MemoryCache) PublishChange(ctx context.Context, ev model.ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("revision", ev.Revision).Msg("change subscriber is slow, event dropped")
		}
	}
	return nil
}

func (c *MemoryCache) SubscribeChanges(ctx context.Context) (<-chan model.ChangeEvent, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan model.ChangeEvent, 16)
	c.subscribers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	return nil
}
