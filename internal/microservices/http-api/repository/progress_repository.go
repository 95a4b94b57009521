package repository

import (
	"context"
	"errors"
	"time"

	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/shared"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("coursehub/repository")

// ProgressFields is a partial update. Nil fields are left untouched.
type ProgressFields struct {
	WatchTimeSeconds *float64
	PositionSeconds  *float64
	DurationSeconds  *float64
	Completed        *bool
	Notes            *string
}

func (f ProgressFields) IsEmpty() bool {
	return f.WatchTimeSeconds == nil && f.PositionSeconds == nil &&
		f.DurationSeconds == nil && f.Completed == nil && f.Notes == nil
}

// ProgressRepository is the durable progress store.
// Get and Reset return nil, nil when no record exists; Upsert creates it lazily.
type ProgressRepository interface {
	Get(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error)
	Upsert(ctx context.Context, userID, lessonID string, fields ProgressFields) (*models.ProgressRecord, error)
	Reset(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error)
	ListByUser(ctx context.Context, userID string, lessonIDs []string) (map[string]*models.ProgressRecord, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error)
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Get(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	var progress models.ProgressRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		First(&progress).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // No progress yet
		}
		return nil, storeError("get progress", err)
	}
	return &progress, nil
}

// Upsert merges the supplied fields into the (user, lesson) row in one
// INSERT ... ON CONFLICT statement. completed is OR-merged so it never goes back to false.
func (r *progressRepository) Upsert(ctx context.Context, userID, lessonID string, fields ProgressFields) (*models.ProgressRecord, error) {
	ctx, span := tracer.Start(ctx, "progress.upsert", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("lesson_id", lessonID),
	))
	defer span.End()

	if userID == "" || lessonID == "" {
		return nil, shared.NewValidationError("key", "user and lesson are required")
	}
	if fields.IsEmpty() {
		return nil, shared.NewValidationError("fields", "at least one field is required")
	}
	if err := r.checkReferences(ctx, userID, lessonID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := time.Now().UTC()
	row := models.ProgressRecord{
		UserID:        userID,
		LessonID:      lessonID,
		LastWatchedAt: now,
	}
	columns := []string{"last_watched_at"}
	if fields.WatchTimeSeconds != nil {
		row.WatchTimeSeconds = *fields.WatchTimeSeconds
		columns = append(columns, "watch_time_seconds")
	}
	if fields.PositionSeconds != nil {
		pos := *fields.PositionSeconds
		row.PositionSeconds = &pos
		columns = append(columns, "position_seconds")
	}
	if fields.DurationSeconds != nil {
		row.DurationSeconds = *fields.DurationSeconds
		columns = append(columns, "duration_seconds")
	}
	if fields.Notes != nil {
		row.Notes = *fields.Notes
		columns = append(columns, "notes")
	}

	updates := clause.AssignmentColumns(columns)
	if fields.Completed != nil {
		row.Completed = *fields.Completed
		updates = append(updates, clause.Assignment{
			Column: clause.Column{Name: "completed"},
			Value:  gorm.Expr("lesson_progress.completed OR excluded.completed"),
		})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoUpdates: updates,
	}).Create(&row).Error
	if err != nil {
		span.RecordError(err)
		return nil, upsertError(err, userID, lessonID)
	}

	return r.Get(ctx, userID, lessonID)
}

func (r *progressRepository) checkReferences(ctx context.Context, userID, lessonID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return storeError("check user", err)
	}
	if count == 0 {
		return shared.ReferenceError("user", userID)
	}
	var alive bool
	if err := r.db.WithContext(ctx).Raw("SELECT "+lessonAlive, lessonID).Scan(&alive).Error; err != nil {
		return storeError("check lesson", err)
	}
	if !alive {
		return shared.ReferenceError("lesson", lessonID)
	}
	return nil
}

// Reset clears completion, position and watch time. Notes survive.
func (r *progressRepository) Reset(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProgressRecord{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Updates(map[string]any{
			"completed":          false,
			"position_seconds":   nil,
			"watch_time_seconds": 0,
			"last_watched_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, storeError("reset progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.Get(ctx, userID, lessonID)
}

func (r *progressRepository) ListByUser(ctx context.Context, userID string, lessonIDs []string) (map[string]*models.ProgressRecord, error) {
	out := make(map[string]*models.ProgressRecord, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return out, nil
	}

	var list []models.ProgressRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND lesson_id IN ?", userID, lessonIDs).
		Find(&list).Error; err != nil {
		return nil, storeError("list progress", err)
	}
	for i := range list {
		out[list[i].LessonID] = &list[i]
	}
	return out, nil
}

func (r *progressRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error) {
	var list []models.ProgressRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_watched_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, storeError("list recent progress", err)
	}
	return list, nil
}
