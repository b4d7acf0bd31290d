package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rehiy/modem-fota/events"
)

const pingInterval = 30 * time.Second

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	broker *events.Broker
}

// NewWebSocketHandler 创建新的WebSocket处理器
func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{
		broker: events.GetBroker(),
	}
}

// HandleWebSocket 推送上报、升级状态与结果
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.broker.Subscribe(100)
	defer unsubscribe()

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)

	// 读取客户端消息以处理关闭帧
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				log.Printf("WebSocket client disconnected: %v(%s)", r.RemoteAddr, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket client disconnected: %v(%s)", r.RemoteAddr, err)
				return
			}
		case <-closed:
			log.Printf("WebSocket client closed: %s", r.RemoteAddr)
			return
		}
	}
}
