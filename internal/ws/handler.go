package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler апгрейд соединения и запуск клиента
type WSHandler struct {
	Hub           *Hub
	AllowedOrigin string
}

func NewWSHandler(hub *Hub, allowedOrigin string) *WSHandler {
	return &WSHandler{Hub: hub, AllowedOrigin: allowedOrigin}
}

func (h *WSHandler) HandleWS() gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if h.AllowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == h.AllowedOrigin
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.Hub.log.Warn("ws: ошибка апгрейда", "error", err)
			return
		}
		go NewClient(h.Hub, conn).Run()
	}
}
