package handler_test

import (
	"context"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
)

// --- MOCK SERVICES ---

type MockProgressService struct {
	mock.Mock
}

func (m *MockProgressService) ReportPosition(ctx context.Context, update dto.PositionUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockProgressService) ReportCompletion(ctx context.Context, event dto.CompletionEvent) (*models.ProgressRecord, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) EndSession(ctx context.Context, userID, lessonID string) error {
	return m.Called(ctx, userID, lessonID).Error(0)
}

func (m *MockProgressService) UpdateNotes(ctx context.Context, userID, lessonID, notes string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) ResetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) GetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	args := m.Called(ctx, userID, lessonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProgressRecord), args.Error(1)
}

func (m *MockProgressService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockAggregator struct {
	mock.Mock
}

func (m *MockAggregator) ComputeCourseProgress(ctx context.Context, userID string, course *models.Course) dto.CourseProgressView {
	return m.Called(ctx, userID, course).Get(0).(dto.CourseProgressView)
}

func (m *MockAggregator) ComputeResumePointer(ctx context.Context, userID string, course *models.Course) (dto.ResumePointer, bool) {
	args := m.Called(ctx, userID, course)
	return args.Get(0).(dto.ResumePointer), args.Bool(1)
}

func (m *MockAggregator) CourseProgressByID(ctx context.Context, userID, courseID string) (dto.CourseProgressView, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Get(0).(dto.CourseProgressView), args.Error(1)
}

func (m *MockAggregator) ResumePointerByID(ctx context.Context, userID, courseID string) (dto.ResumePointer, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Get(0).(dto.ResumePointer), args.Error(1)
}

func (m *MockAggregator) ContinueWatching(ctx context.Context, userID string, limit int) dto.ContinueWatchingList {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).(dto.ContinueWatchingList)
}

func (m *MockAggregator) Dashboard(ctx context.Context, userID string) dto.DashboardView {
	args := m.Called(ctx, userID)
	return args.Get(0).(dto.DashboardView)
}

// --- SETUP HELPERS ---

func floatPtr(f float64) *float64 { return &f }

func mockAuthMiddleware(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", "test-user-id")
		c.Set("email", "learner@example.com")
		c.Set("role", role)
		c.Next()
	}
}
