package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/service"
)

// Client 表示一个 WebSocket 客户端连接
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	actor service.Actor

	mu     sync.Mutex // 保护 send 的关闭
	closed bool
}

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送心跳，消息很小
	maxMessageSize = 4 * 1024
)

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, actor service.Actor) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, 32),
		actor: actor,
	}
}

// ReadPump 读取客户端消息，连接断开时注销
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("user", c.actor.Username).Msg("websocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendMessage(NewMessage(TypeError, "malformed message"))
			continue
		}
		switch msg.Type {
		case TypeHeartbeat:
			c.SendMessage(NewMessage(TypePong, nil))
		default:
			c.SendMessage(NewMessage(TypeError, "unknown message type: "+msg.Type))
		}
	}
}

// WritePump 把 send 通道中的消息写入连接，并定时发送 Ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 非阻塞发送，缓冲区满时丢弃
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("user", c.actor.Username).Msg("websocket send buffer full, message dropped")
	}
}

// Close 关闭发送通道，WritePump 随后发送关闭帧
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
