// Package relay wires the HTTP routes into a gin engine.
package relay

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures and returns a gin engine with all relay routes: the
// WebSocket endpoint and the operator introspection surface. CORS for the
// plain HTTP endpoints reuses the configured origin allow-list; the WebSocket
// handshake enforces it separately through the upgrader's origin check.
func SetupRoutes(hub *Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	cfg := currentConfig()
	corsConfig := cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/ws", WebSocketHandler(hub))
	router.GET("/health", HealthHandler(hub))
	router.GET("/users/online", OnlineUsersHandler(hub))
	return router
}
