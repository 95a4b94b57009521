package repository

import (
	"context"
	"errors"
	"fmt"

	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/shared"

	"gorm.io/gorm"
)

var ErrCourseExists = errors.New("course with this slug already exists")

// LessonLocation places a lesson inside its module and course.
type LessonLocation struct {
	Lesson   models.Lesson
	CourseID string
}

// CatalogRepository is the read model of courses, modules and lessons.
// Lookups return nil, nil when nothing matches.
type CatalogRepository interface {
	GetCourseStructure(ctx context.Context, courseID string) (*models.Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error)
	LocateLessons(ctx context.Context, lessonIDs []string) (map[string]LessonLocation, error)
	ImportCourse(ctx context.Context, course *models.Course) error
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// withStructure preloads modules and lessons in display order.
func withStructure(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Modules", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, id ASC")
		}).
		Preload("Modules.Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, id ASC")
		})
}

func (r *catalogRepository) GetCourseStructure(ctx context.Context, courseID string) (*models.Course, error) {
	var course models.Course
	if err := withStructure(r.db.WithContext(ctx)).First(&course, "id = ?", courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError("get course structure", err)
	}
	return &course, nil
}

func (r *catalogRepository) GetCourseBySlug(ctx context.Context, slug string) (*models.Course, error) {
	var course models.Course
	if err := withStructure(r.db.WithContext(ctx)).First(&course, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, shared.StorageError("get course by slug", err)
	}
	return &course, nil
}

// ListCourses returns every published course with its structure.
func (r *catalogRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := withStructure(r.db.WithContext(ctx)).
		Where("published = ?", true).
		Order("title ASC").
		Find(&courses).Error; err != nil {
		return nil, shared.StorageError("list courses", err)
	}
	return courses, nil
}

// GetLesson ignores lessons whose module was soft-deleted.
func (r *catalogRepository) GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	var lesson models.Lesson
	err := r.db.WithContext(ctx).
		Joins("JOIN course_modules ON course_modules.id = lessons.module_id AND course_modules.deleted_at IS NULL").
		First(&lesson, "lessons.id = ?", lessonID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError("get lesson", err)
	}
	return &lesson, nil
}

func (r *catalogRepository) LocateLessons(ctx context.Context, lessonIDs []string) (map[string]LessonLocation, error) {
	out := make(map[string]LessonLocation, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return out, nil
	}

	var lessons []models.Lesson
	if err := r.db.WithContext(ctx).Where("id IN ?", lessonIDs).Find(&lessons).Error; err != nil {
		return nil, storeError("locate lessons", err)
	}
	moduleIDs := make([]string, 0, len(lessons))
	for _, l := range lessons {
		moduleIDs = append(moduleIDs, l.ModuleID)
	}

	var modules []models.Module
	if err := r.db.WithContext(ctx).Where("id IN ?", moduleIDs).Find(&modules).Error; err != nil {
		return nil, shared.StorageError("locate modules", err)
	}
	courseOf := make(map[string]string, len(modules))
	for _, m := range modules {
		courseOf[m.ID] = m.CourseID
	}

	for _, l := range lessons {
		courseID, ok := courseOf[l.ModuleID]
		if !ok {
			continue // module soft-deleted
		}
		out[l.ID] = LessonLocation{Lesson: l, CourseID: courseID}
	}
	return out, nil
}

// ImportCourse creates a course with its modules and lessons in one transaction.
func (r *catalogRepository) ImportCourse(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Course{}).Where("slug = ?", course.Slug).Count(&count).Error; err != nil {
			return shared.StorageError("check course slug", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrCourseExists, course.Slug)
		}
		if err := tx.Create(course).Error; err != nil {
			return shared.StorageError("import course", err)
		}
		return nil
	})
}
