package handler

import (
	"context"
	"net/http"
	"time"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type ProgressHandler struct {
	progressService service.ProgressService
}

func NewProgressHandler(progressService service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progressService: progressService}
}

// RegisterRoutes registers the per-lesson progress routes
func (h *ProgressHandler) RegisterRoutes(rg *gin.RouterGroup) {
	lessons := rg.Group("/progress/lessons/:lesson_id")
	lessons.GET("", h.GetProgress)
	lessons.POST("/position", h.ReportPosition)
	lessons.POST("/complete", h.ReportCompletion)
	lessons.POST("/flush", h.Flush)
	lessons.PUT("/notes", h.UpdateNotes)
	lessons.DELETE("", h.ResetProgress)
}

// RegisterAdminRoutes registers routes acting on another user's progress.
// The group must already be guarded by middleware.RequireAdmin.
func (h *ProgressHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.DELETE("/progress/users/:user_id/lessons/:lesson_id", h.ResetUserProgress)
}

// ReportPosition accepts a playback tick. The write happens later, coalesced.
func (h *ProgressHandler) ReportPosition(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ReportPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.progressService.ReportPosition(c.Request.Context(), dto.PositionUpdate{
		UserID:          userID,
		LessonID:        c.Param("lesson_id"),
		PositionSeconds: *req.PositionSeconds,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "position accepted"})
}

func (h *ProgressHandler) ReportCompletion(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.ReportCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// completion retries are longer than a normal request budget
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	rec, err := h.progressService.ReportCompletion(ctx, dto.CompletionEvent{
		UserID:          userID,
		LessonID:        c.Param("lesson_id"),
		DurationSeconds: *req.DurationSeconds,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewProgressResponse(rec))
}

// Flush is the page-unload beacon: persist the buffered position now.
func (h *ProgressHandler) Flush(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.progressService.EndSession(ctx, userID, c.Param("lesson_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProgressHandler) UpdateNotes(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.progressService.UpdateNotes(ctx, userID, c.Param("lesson_id"), *req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewProgressResponse(rec))
}

func (h *ProgressHandler) GetProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.progressService.GetProgress(ctx, userID, c.Param("lesson_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress for this lesson"})
		return
	}
	c.JSON(http.StatusOK, dto.NewProgressResponse(rec))
}

// ResetProgress clears the caller's own progress.
func (h *ProgressHandler) ResetProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.reset(c, userID)
}

// ResetUserProgress clears the progress of the user named in the path.
func (h *ProgressHandler) ResetUserProgress(c *gin.Context) {
	h.reset(c, c.Param("user_id"))
}

func (h *ProgressHandler) reset(c *gin.Context, userID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.progressService.ResetProgress(ctx, userID, c.Param("lesson_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no progress for this lesson"})
		return
	}
	c.JSON(http.StatusOK, dto.NewProgressResponse(rec))
}
