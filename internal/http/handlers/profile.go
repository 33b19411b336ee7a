package handlers

import (
	"net/http"

	"tasksync/internal/domain"
	"tasksync/internal/logger"

	"github.com/gin-gonic/gin"
)

// UpdateProfile validates a profile update and echoes it back with the
// caller's id. Nothing is stored.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	var p domain.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	if err := domain.Validator().Struct(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.UserID = userID

	logger.Info("profile updated", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"user": p})
}
