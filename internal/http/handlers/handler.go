package handlers

import (
	"context"

	"tasksync/internal/ws"

	"github.com/gin-gonic/gin"
)

// Pinger is anything the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerConfig struct {
	AllowedOrigin string
	DevMode       bool
}

type Handler struct {
	Hub *ws.Hub
	cfg HandlerConfig
}

func NewHandler(hub *ws.Hub, cfg HandlerConfig) *Handler {
	return &Handler{Hub: hub, cfg: cfg}
}

// getUserID pulls the identity the JWT middleware stored on the context.
func getUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
