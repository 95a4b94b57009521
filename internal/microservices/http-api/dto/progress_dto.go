package dto

import (
	"time"

	"coursehub/internal/microservices/http-api/models"
)

// DTOs for progress-related operations in HTTP API and playback sessions

// PositionUpdate is a periodic playback report. Later updates for the same
// (user, lesson) supersede earlier ones.
type PositionUpdate struct {
	UserID          string  `json:"user_id" validate:"required,uuid"`
	LessonID        string  `json:"lesson_id" validate:"required,uuid"`
	PositionSeconds float64 `json:"position_seconds" validate:"gte=0"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
}

// CompletionEvent is sent once when playback reaches the end of a lesson.
type CompletionEvent struct {
	UserID          string  `json:"user_id" validate:"required,uuid"`
	LessonID        string  `json:"lesson_id" validate:"required,uuid"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
}

// ReportPositionRequest is the HTTP body for a position report; the user and
// lesson come from the token and the path.
type ReportPositionRequest struct {
	PositionSeconds *float64 `json:"position_seconds" binding:"required"`
	DurationSeconds float64  `json:"duration_seconds"`
}

type ReportCompletionRequest struct {
	DurationSeconds *float64 `json:"duration_seconds" binding:"required"`
}

type UpdateNotesRequest struct {
	Notes *string `json:"notes" binding:"required"`
}

type ProgressResponse struct {
	UserID           string   `json:"user_id"`
	LessonID         string   `json:"lesson_id"`
	WatchTimeSeconds float64  `json:"watch_time_seconds"`
	PositionSeconds  *float64 `json:"position_seconds,omitempty"`
	DurationSeconds  float64  `json:"duration_seconds"`
	Completed        bool     `json:"completed"`
	Percentage       int      `json:"percentage"`
	Notes            string   `json:"notes"`
	LastWatchedAt    string   `json:"last_watched_at"`
	CreatedAt        string   `json:"created_at"`
}

func NewProgressResponse(p *models.ProgressRecord) ProgressResponse {
	return ProgressResponse{
		UserID:           p.UserID,
		LessonID:         p.LessonID,
		WatchTimeSeconds: p.WatchTimeSeconds,
		PositionSeconds:  p.PositionSeconds,
		DurationSeconds:  p.DurationSeconds,
		Completed:        p.Completed,
		Percentage:       p.Percentage(),
		Notes:            p.Notes,
		LastWatchedAt:    p.LastWatchedAt.UTC().Format(time.RFC3339),
		CreatedAt:        p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CourseProgressView is derived on read and never stored.
type CourseProgressView struct {
	CourseID         string `json:"course_id"`
	CourseTitle      string `json:"course_title,omitempty"`
	TotalLessons     int    `json:"total_lessons"`
	CompletedLessons int    `json:"completed_lessons"`
	Percentage       int    `json:"percentage"`
	Degraded         bool   `json:"degraded,omitempty"`
}

// Resume pointer reasons.
const (
	ResumeNextIncomplete = "next_incomplete"
	ResumeStart          = "start"
	ResumeRestart        = "restart"
)

type ResumePointer struct {
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id"`
	LessonID string `json:"lesson_id"`
	Reason   string `json:"reason"`
}

type ContinueWatchingItem struct {
	CourseID        string    `json:"course_id"`
	ModuleID        string    `json:"module_id"`
	LessonID        string    `json:"lesson_id"`
	LessonTitle     string    `json:"lesson_title"`
	PositionSeconds float64   `json:"position_seconds"`
	DurationSeconds float64   `json:"duration_seconds"`
	Percentage      int       `json:"percentage"`
	LastWatchedAt   time.Time `json:"last_watched_at"`
}

// ContinueWatchingList is the continue-watching rail. Degraded is set when
// stored progress could not be read and the list is empty for that reason.
type ContinueWatchingList struct {
	Items    []ContinueWatchingItem `json:"items"`
	Degraded bool                   `json:"degraded,omitempty"`
}

type DashboardView struct {
	Courses  []CourseProgressView `json:"courses"`
	Degraded bool                 `json:"degraded,omitempty"`
}
