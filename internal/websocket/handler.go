package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/middleware"
)

// WebSocket 升级器配置
// 认证由 token 完成，不依赖 Cookie，因此不校验 Origin
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 处理 WebSocket 连接
type Handler struct {
	hub *Hub
}

// NewHandler 创建 WebSocket Handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleChanges 处理变更订阅连接
// 路由: GET /ws/changes
// 参数: token (query parameter) - 由 AuthMiddleware 校验
func (h *Handler) HandleChanges(c *gin.Context) {
	actor := middleware.GetActor(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, actor)
	h.hub.Register(client)
	client.SendMessage(NewMessage(TypeHello, &HelloPayload{Username: actor.Username, Role: string(actor.Role)}))

	go client.WritePump()
	go client.ReadPump()
}
