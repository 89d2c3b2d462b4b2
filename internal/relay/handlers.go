// Package relay exposes the HTTP handlers: the WebSocket upgrade endpoint and
// the operator-facing health and online-user introspection endpoints.
package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the HTTP connection and admits the new session
// into the hub. The userId/userEmail query parameters are an unverified
// identity hint; presence is only established once the client sends
// join-user-room.
func WebSocketHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		hint := IdentityHint{
			UserID:    c.Query("userId"),
			UserEmail: c.Query("userEmail"),
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			logrus.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		client := NewClient(conn, hub, c.Request.RemoteAddr, hint)
		logrus.WithFields(logrus.Fields{
			"session_id": client.sessionID,
			"remote":     client.addr,
			"hint_user":  hint.UserID,
		}).Info("WebSocket connection opened")

		// The hub launches the pump goroutines once it admits the client.
		hub.register <- client
	}
}

// HealthHandler reports liveness, the online user count, and process uptime,
// all computed from the presence directory snapshot.
func HealthHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"onlineUsers": hub.Presence().Count(),
			"uptime":      int64(hub.Uptime().Seconds()),
		})
	}
}

// OnlineUsersHandler lists the user ids currently online.
func OnlineUsersHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		users := hub.Presence().Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"count": len(users),
			"users": users,
		})
	}
}
