package service

import (
	"context"

	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/microservices/http-api/repository"

	"github.com/stretchr/testify/mock"
)

// MockProgressRepository mocks the ProgressRepository interface
type MockProgressRepository struct {
	mock.Mock
}

func (m *MockProgressRepository) Get(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressRepository) Upsert(ctx context.Context, userID, lessonID string, fields repository.ProgressFields) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressRepository) Reset(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressRepository) ListByUser(ctx context.Context, userID string, lessonIDs []string) (map[string]*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProgressRecord), args.Error(1)
}

// MockCatalogRepository mocks the CatalogRepository interface
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetCourseStructure(ctx context.Context, courseID string) (*models.Course, error) {
	args := m.Called(ctx, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Course), args.Error(1)
}

func (m *MockCatalogRepository) GetCourseBySlug(ctx context.Context, slug string) (*models.Course, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Course), args.Error(1)
}

func (m *MockCatalogRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Course), args.Error(1)
}

func (m *MockCatalogRepository) GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	args := m.Called(ctx, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lesson), args.Error(1)
}

func (m *MockCatalogRepository) LocateLessons(ctx context.Context, lessonIDs []string) (map[string]repository.LessonLocation, error) {
	args := m.Called(ctx, lessonIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]repository.LessonLocation), args.Error(1)
}

func (m *MockCatalogRepository) ImportCourse(ctx context.Context, course *models.Course) error {
	args := m.Called(ctx, course)
	return args.Error(0)
}
