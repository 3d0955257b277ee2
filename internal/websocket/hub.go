package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/cache"
	"powerhouse-manager/internal/model"
)

// Hub 管理所有变更订阅连接
// 事件来自 cache.SubscribeChanges：启用 Redis 时包括其他实例发布的事件
type Hub struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex

	cache cache.Cache
}

// NewHub 创建 Hub 实例
func NewHub(c cache.Cache) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		cache:   c,
	}
}

// Start 同步订阅变更事件，然后在后台转发给所有客户端，直到 ctx 结束
// 返回时订阅已经生效，之后发布的事件不会丢失
func (h *Hub) Start(ctx context.Context) error {
	events, cancel, err := h.cache.SubscribeChanges(ctx)
	if err != nil {
		return err
	}
	go h.run(ctx, events, cancel)
	return nil
}

func (h *Hub) run(ctx context.Context, events <-chan model.ChangeEvent, cancel func()) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				log.Warn().Msg("change subscription closed")
				h.closeAll()
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Register 注册客户端
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Debug().Str("user", c.actor.Username).Int("clients", n).Msg("change feed client registered")
}

// Unregister 注销客户端并关闭其发送通道
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.Close()
	}
	h.mu.Unlock()
}

// Broadcast 把变更事件发给所有客户端
func (h *Hub) Broadcast(ev model.ChangeEvent) {
	msg := NewMessage(TypeSnapshotReplaced, ev)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.SendMessage(msg)
	}
	log.Debug().Str("revision", ev.Revision).Int("clients", len(h.clients)).Msg("change event broadcast")
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}
