package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/bar-order-app/utils"
)

// WebSocketOnly rejects plain HTTP requests on feed endpoints before any lookup is done.
func WebSocketOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !websocket.IsWebSocketUpgrade(c.Request) {
			utils.RespondMessage(c, http.StatusBadRequest, "websocket upgrade required")
			c.Abort()
			return
		}
		c.Next()
	}
}
