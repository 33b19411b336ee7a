package handlers

import (
	"net/http"

	"tasksync/internal/logger"
	"tasksync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DevTokenRequest struct {
	UserID string `json:"user_id" binding:"omitempty,max=128"`
}

// DevToken issues a token for any user id. Only routed when DEV_MODE is on;
// an empty user id gets a fresh one.
func (h *Handler) DevToken(c *gin.Context) {
	var req DevTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}

	token, err := service.GenerateJWT(req.UserID)
	if err != nil {
		logger.Error("token generation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	logger.Info("dev token issued", "user_id", req.UserID)
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": req.UserID,
	})
}
