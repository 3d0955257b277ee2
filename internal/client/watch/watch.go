// Package watch 订阅服务端的快照变更推送
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/model"
	feed "powerhouse-manager/internal/websocket"
)

// HeartbeatInterval 心跳间隔
const HeartbeatInterval = 30 * time.Second

// Handler 收到变更事件时的回调
type Handler func(ev model.ChangeEvent)

// inbound 服务端消息，payload 延迟解析
type inbound struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Watcher 变更订阅客户端
type Watcher struct {
	url      string
	dialer   *websocket.Dialer
	interval time.Duration
	writeMu  sync.Mutex
}

// New 创建订阅客户端
// 参数:
//   - serverURL: HTTP 服务器地址（如 http://localhost:8080）
//   - token: 访问令牌
func New(serverURL, token string) *Watcher {
	wsURL := strings.Replace(serverURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.TrimRight(wsURL, "/") + "/ws/changes?token=" + url.QueryEscape(token)
	return &Watcher{
		url:      wsURL,
		dialer:   websocket.DefaultDialer,
		interval: HeartbeatInterval,
	}
}

// Run 建立连接并阻塞接收事件，直到 ctx 取消或连接断开
// onHello 可以为 nil
// 返回:
//   - error: ctx 取消时返回 nil，其余为连接或读取错误
func (w *Watcher) Run(ctx context.Context, onHello func(feed.HelloPayload), onChange Handler) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect change feed: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("connect change feed: %w", err)
	}
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() {
		readErr <- w.readLoop(conn, onHello, onChange)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			w.writeMu.Unlock()
			return nil
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := w.send(conn, feed.NewMessage(feed.TypeHeartbeat, nil)); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		}
	}
}

func (w *Watcher) readLoop(conn *websocket.Conn, onHello func(feed.HelloPayload), onChange Handler) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("skip malformed change feed message")
			continue
		}

		switch msg.Type {
		case feed.TypeHello:
			var hello feed.HelloPayload
			if err := json.Unmarshal(msg.Payload, &hello); err == nil && onHello != nil {
				onHello(hello)
			}
		case feed.TypeSnapshotReplaced:
			var ev model.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Warn().Err(err).Msg("skip malformed change event")
				continue
			}
			if onChange != nil {
				onChange(ev)
			}
		case feed.TypePong:
		default:
			log.Debug().Str("type", msg.Type).Msg("ignore change feed message")
		}
	}
}

func (w *Watcher) send(conn *websocket.Conn, msg *feed.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}
