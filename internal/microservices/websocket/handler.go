package websocket

import (
	"net/http"

	"coursehub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// NewUpgrader accepts any origin when allowedOrigins is empty or contains "*".
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// PlaybackHandler upgrades an authenticated request into a playback session for ?lesson_id=.
func PlaybackHandler(progress service.ProgressService, allowedOrigins []string, logger *zap.Logger) gin.HandlerFunc {
	upgrader := NewUpgrader(allowedOrigins)
	logger = logger.Named("playback_ws")

	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: user ID not found"})
			return
		}
		lessonID := c.Query("lesson_id")
		if lessonID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lesson_id is required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error
			logger.Warn("upgrade_failed", zap.Error(err))
			return
		}

		session := NewSession(userID, lessonID, conn, progress, logger)
		logger.Debug("session_opened", zap.String("user_id", userID), zap.String("lesson_id", lessonID))

		go session.WritePump()
		go session.ReadPump()
	}
}
