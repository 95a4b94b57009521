package handler

import (
	"errors"
	"net/http"

	"coursehub/internal/microservices/http-api/service"
	"coursehub/internal/microservices/playback"
	"coursehub/internal/shared"

	"github.com/gin-gonic/gin"
)

// respondError maps the progress error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, shared.ErrReference),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrCourseEmpty):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, shared.ErrStorage), errors.Is(err, playback.ErrCoalescerClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "progress may not be saved"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// currentUser reads the authenticated user id set by the auth middleware.
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", false
	}
	return userID, true
}
