package models

import (
	"math"
	"time"
)

// ProgressRecord is one learner's persisted state for one lesson.
// Rows are created lazily on the first write for the (user, lesson) pair.
type ProgressRecord struct {
	UserID           string    `gorm:"type:uuid;not null;primaryKey" json:"user_id"`
	LessonID         string    `gorm:"type:uuid;not null;primaryKey;index" json:"lesson_id"`
	WatchTimeSeconds float64   `gorm:"not null;default:0" json:"watch_time_seconds"`
	PositionSeconds  *float64  `json:"position_seconds,omitempty"`
	DurationSeconds  float64   `gorm:"not null;default:0" json:"duration_seconds"`
	Completed        bool      `gorm:"not null;default:false" json:"completed"`
	Notes            string    `gorm:"type:text;not null;default:''" json:"notes"`
	LastWatchedAt    time.Time `gorm:"not null;index" json:"last_watched_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName overrides the table name used by ProgressRecord to `lesson_progress`
func (ProgressRecord) TableName() string {
	return "lesson_progress"
}

// EffectivePosition returns the stored position, or the watch time when
// no position was ever reported.
func (p *ProgressRecord) EffectivePosition() float64 {
	if p == nil {
		return 0
	}
	if p.PositionSeconds != nil {
		return *p.PositionSeconds
	}
	return p.WatchTimeSeconds
}

// Percentage is the canonical watched percentage of the record using its own duration.
func (p *ProgressRecord) Percentage() int {
	if p == nil {
		return 0
	}
	return PercentageOf(p.Completed, p.EffectivePosition(), p.DurationSeconds)
}

// PercentageOf is the single percentage rule shared by every read path:
// 100 when completed, otherwise position/duration capped at 100, 0 without a duration.
func PercentageOf(completed bool, position, duration float64) int {
	if completed {
		return 100
	}
	if duration <= 0 || position <= 0 {
		return 0
	}
	pct := int(math.Round(position / duration * 100))
	if pct > 100 {
		return 100
	}
	return pct
}
