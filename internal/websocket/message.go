// Package websocket 提供快照变更的实时推送
// 每次全量替换成功后，所有已连接的客户端收到一条 snapshot:replaced 消息
package websocket

import (
	"time"
)

// 消息类型
const (
	// 服务端 → 客户端
	TypeSnapshotReplaced = "snapshot:replaced" // 快照已被替换，客户端应重新加载
	TypeHello            = "hello"             // 连接建立后的第一条消息

	// 客户端 → 服务端
	TypeHeartbeat = "heartbeat"

	// 通用
	TypePong  = "pong"
	TypeError = "error"
)

// Message WebSocket 消息结构
type Message struct {
	Type      string      `json:"type"`              // 消息类型
	Payload   interface{} `json:"payload,omitempty"` // 消息内容
	Timestamp int64       `json:"timestamp"`         // 时间戳（毫秒）
}

// NewMessage 创建新消息
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// HelloPayload 连接建立时告知客户端的身份
type HelloPayload struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}
