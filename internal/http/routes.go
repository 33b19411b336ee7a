package http

import (
	"time"

	"tasksync/internal/http/handlers"
	"tasksync/internal/http/middleware"
	"tasksync/internal/ws"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

type Deps struct {
	Hub   *ws.Hub
	Redis *redis.Client // nil uses the in-process limiter
	// Checks are pinged by /health and /readyz, keyed by name.
	Checks map[string]handlers.Pinger

	Version       string
	AllowedOrigin string
	DevMode       bool
	RateLimit     int
	RateWindow    time.Duration
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := handlers.NewHandler(d.Hub, handlers.HandlerConfig{
		AllowedOrigin: d.AllowedOrigin,
		DevMode:       d.DevMode,
	})
	healthHandler := handlers.NewHealthHandler(d.Checks, d.Version, d.Hub.Count)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Live task sessions
	r.GET("/ws", middleware.RateLimit(d.Redis, d.RateLimit, d.RateWindow), h.WS)

	v1 := r.Group("/api/v1")
	if d.DevMode {
		v1.POST("/auth/dev-token", middleware.RateLimit(d.Redis, d.RateLimit, d.RateWindow), h.DevToken)
	}

	authed := v1.Group("")
	authed.Use(middleware.JWT(), middleware.RateLimit(d.Redis, d.RateLimit, d.RateWindow))
	authed.GET("/me", h.Me)
	authed.PUT("/user", h.UpdateProfile)
}
