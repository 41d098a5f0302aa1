package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-collab/config"
	"github.com/mossy-p/webrtc-collab/internal/middleware"
	"github.com/mossy-p/webrtc-collab/internal/room"
	"github.com/prometheus/client_golang/prometheus"
)

// NewRouter builds the HTTP surface: health, login, room info, metrics and
// the websocket endpoint. HTTP metrics are registered with reg.
func NewRouter(cfg *config.Config, coord *room.Coordinator, reg *prometheus.Registry) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := NewHTTPMetrics(reg)
	signaling := NewSignalingHandler(coord, cfg.Conn, metrics)
	auth := middleware.JWTAuth(cfg.JWTSecret)

	router := gin.Default()
	router.Use(metrics.Instrument())
	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", MetricsHandler(reg))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", Login(cfg.JWTSecret))
		apiGroup.GET("/rooms/:roomId", auth, GetRoom(coord))
	}

	router.GET("/ws", auth, signaling.HandleSignaling)

	return router
}
