package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"coursehub/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type CourseProgressHandler struct {
	aggregator service.Aggregator
}

func NewCourseProgressHandler(aggregator service.Aggregator) *CourseProgressHandler {
	return &CourseProgressHandler{aggregator: aggregator}
}

func (h *CourseProgressHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/courses/:course_id/progress", h.GetCourseProgress)
	rg.GET("/courses/:course_id/resume", h.GetResumePointer)
	rg.GET("/dashboard/continue-watching", h.ContinueWatching)
	rg.GET("/dashboard/courses", h.Dashboard)
}

func (h *CourseProgressHandler) GetCourseProgress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	view, err := h.aggregator.CourseProgressByID(ctx, userID, c.Param("course_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CourseProgressHandler) GetResumePointer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ptr, err := h.aggregator.ResumePointerByID(ctx, userID, c.Param("course_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ptr)
}

func (h *CourseProgressHandler) ContinueWatching(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit := service.DefaultContinueWatchingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, h.aggregator.ContinueWatching(ctx, userID, limit))
}

func (h *CourseProgressHandler) Dashboard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, h.aggregator.Dashboard(ctx, userID))
}
