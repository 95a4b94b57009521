package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/microservices/http-api/repository"
	"coursehub/internal/microservices/playback"
	"coursehub/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	userA      = "3b0f5a52-8f0e-4d6a-9c57-2f1d0c6a7e01"
	userB      = "3b0f5a52-8f0e-4d6a-9c57-2f1d0c6a7e02"
	lessonA    = "a4d2c9e1-5b7f-4e30-8d1a-6c9b2e4f0a11"
	lessonGone = "a4d2c9e1-5b7f-4e30-8d1a-6c9b2e4f0aff"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func newTestProgressService(t *testing.T, repo *MockProgressRepository, window time.Duration) ProgressService {
	t.Helper()
	svc := NewProgressService(repo, nil, ProgressServiceConfig{
		Window:          window,
		Workers:         2,
		PositionRetry:   fastRetry,
		CompletionRetry: fastRetry.WithAttempts(8),
	}, nil)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc
}

func positionIs(pos float64) interface{} {
	return mock.MatchedBy(func(f repository.ProgressFields) bool {
		return f.PositionSeconds != nil && *f.PositionSeconds == pos &&
			f.WatchTimeSeconds != nil && *f.WatchTimeSeconds == pos &&
			f.Completed == nil
	})
}

func pos(user, lesson string, p float64) dto.PositionUpdate {
	return dto.PositionUpdate{UserID: user, LessonID: lesson, PositionSeconds: p, DurationSeconds: 300}
}

func TestReportPosition_RejectsMalformedEvents(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name   string
		update dto.PositionUpdate
	}{
		{"NegativePosition", dto.PositionUpdate{UserID: userA, LessonID: lessonA, PositionSeconds: -1}},
		{"NegativeDuration", dto.PositionUpdate{UserID: userA, LessonID: lessonA, DurationSeconds: -5}},
		{"MissingUser", dto.PositionUpdate{LessonID: lessonA, PositionSeconds: 3}},
		{"MissingLesson", dto.PositionUpdate{UserID: userA, PositionSeconds: 3}},
		{"MalformedLesson", dto.PositionUpdate{UserID: userA, LessonID: "abc", PositionSeconds: 3}},
		{"MalformedUser", dto.PositionUpdate{UserID: "user-1", LessonID: lessonA, PositionSeconds: 3}},
		{"NaN", dto.PositionUpdate{UserID: userA, LessonID: lessonA, PositionSeconds: math.NaN()}},
		{"Inf", dto.PositionUpdate{UserID: userA, LessonID: lessonA, DurationSeconds: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ReportPosition(ctx, tt.update)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	require.NoError(t, svc.Shutdown(ctx))
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportPosition_CoalescesToLastValue(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	repo.On("Upsert", mock.Anything, userA, lessonA, positionIs(30)).Return(&models.ProgressRecord{}, nil).Once()

	for _, p := range []float64{10, 20, 30} {
		require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonA, p)))
	}
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, svc.EndSession(ctx, userA, lessonA))
	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestReportPosition_WindowExpiryWrites(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, 20*time.Millisecond)

	written := make(chan struct{})
	repo.On("Upsert", mock.Anything, userA, lessonA, positionIs(12)).
		Run(func(mock.Arguments) { close(written) }).
		Return(&models.ProgressRecord{}, nil).Once()

	require.NoError(t, svc.ReportPosition(context.Background(), pos(userA, lessonA, 12)))

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("position was not written after the window expired")
	}
	require.NoError(t, svc.Shutdown(context.Background()))
	repo.AssertExpectations(t)
}

func TestReportPosition_StorageErrorRetriedThenDropped(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	storageErr := shared.StorageError("upsert progress", errors.New("connection refused"))
	repo.On("Upsert", mock.Anything, userA, lessonA, positionIs(10)).Return(nil, storageErr).Times(3)

	require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonA, 10)))
	err := svc.EndSession(ctx, userA, lessonA)
	assert.ErrorIs(t, err, shared.ErrStorage)
	repo.AssertNumberOfCalls(t, "Upsert", 3)

	// state was cleared, so the next report starts fresh
	repo.On("Upsert", mock.Anything, userA, lessonA, positionIs(15)).Return(&models.ProgressRecord{}, nil).Once()
	require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonA, 15)))
	require.NoError(t, svc.EndSession(ctx, userA, lessonA))
	repo.AssertExpectations(t)
}

func TestReportPosition_ReferenceErrorNotRetried(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	repo.On("Upsert", mock.Anything, userA, lessonGone, mock.Anything).Return(nil, shared.ReferenceError("lesson", lessonGone)).Once()

	require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonGone, 10)))
	err := svc.EndSession(ctx, userA, lessonGone)
	assert.ErrorIs(t, err, shared.ErrReference)
	repo.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestReportCompletion_WritesDurationAndDiscardsPending(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	completed := mock.MatchedBy(func(f repository.ProgressFields) bool {
		return f.Completed != nil && *f.Completed &&
			*f.PositionSeconds == 300 && *f.WatchTimeSeconds == 300 && *f.DurationSeconds == 300
	})
	want := &models.ProgressRecord{UserID: userA, LessonID: lessonA, Completed: true, DurationSeconds: 300}
	repo.On("Upsert", mock.Anything, userA, lessonA, completed).Return(want, nil).Once()

	require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonA, 290)))
	rec, err := svc.ReportCompletion(ctx, dto.CompletionEvent{UserID: userA, LessonID: lessonA, DurationSeconds: 300})
	require.NoError(t, err)
	assert.True(t, rec.Completed)

	// the buffered 290s position was superseded
	require.NoError(t, svc.EndSession(ctx, userA, lessonA))
	repo.AssertNumberOfCalls(t, "Upsert", 1)
	repo.AssertExpectations(t)
}

func TestReportCompletion_RetriesAggressively(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)

	storageErr := shared.StorageError("upsert progress", errors.New("timeout"))
	repo.On("Upsert", mock.Anything, userA, lessonA, mock.Anything).Return(nil, storageErr).Times(5)
	repo.On("Upsert", mock.Anything, userA, lessonA, mock.Anything).Return(&models.ProgressRecord{Completed: true}, nil).Once()

	rec, err := svc.ReportCompletion(context.Background(), dto.CompletionEvent{UserID: userA, LessonID: lessonA, DurationSeconds: 60})
	require.NoError(t, err)
	assert.True(t, rec.Completed)
	repo.AssertNumberOfCalls(t, "Upsert", 6)
}

func TestReportCompletion_FailureIsReturned(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)

	storageErr := shared.StorageError("upsert progress", errors.New("timeout"))
	repo.On("Upsert", mock.Anything, userA, lessonA, mock.Anything).Return(nil, storageErr)

	_, err := svc.ReportCompletion(context.Background(), dto.CompletionEvent{UserID: userA, LessonID: lessonA, DurationSeconds: 60})
	assert.ErrorIs(t, err, shared.ErrStorage)
	repo.AssertNumberOfCalls(t, "Upsert", 8)
}

func TestReportCompletion_ValidationError(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)

	_, err := svc.ReportCompletion(context.Background(), dto.CompletionEvent{UserID: userA, LessonID: lessonA, DurationSeconds: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportCompletion_MalformedLessonNotRetried(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)

	_, err := svc.ReportCompletion(context.Background(), dto.CompletionEvent{UserID: userA, LessonID: "abc", DurationSeconds: 60})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.False(t, shared.IsRetryable(err))
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportCompletion_StoreRejectionNotRetried(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)

	rejected := shared.NewValidationError("key", "invalid input syntax for type uuid")
	repo.On("Upsert", mock.Anything, userA, lessonA, mock.Anything).Return(nil, rejected)

	_, err := svc.ReportCompletion(context.Background(), dto.CompletionEvent{UserID: userA, LessonID: lessonA, DurationSeconds: 60})
	assert.ErrorIs(t, err, shared.ErrValidation)
	repo.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestUpdateNotes(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	notesOnly := mock.MatchedBy(func(f repository.ProgressFields) bool {
		return f.Notes != nil && *f.Notes == "goroutines leak" && f.PositionSeconds == nil && f.Completed == nil
	})
	repo.On("Upsert", mock.Anything, userA, lessonA, notesOnly).Return(&models.ProgressRecord{Notes: "goroutines leak"}, nil).Once()

	rec, err := svc.UpdateNotes(ctx, userA, lessonA, "goroutines leak")
	require.NoError(t, err)
	assert.Equal(t, "goroutines leak", rec.Notes)

	_, err = svc.UpdateNotes(ctx, userA, lessonA, strings.Repeat("x", MaxNotesLength+1))
	assert.ErrorIs(t, err, shared.ErrValidation)
	repo.AssertExpectations(t)
}

func TestResetProgress_DiscardsPending(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	repo.On("Reset", mock.Anything, userA, lessonA).Return(&models.ProgressRecord{UserID: userA, LessonID: lessonA}, nil).Once()

	require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonA, 50)))
	rec, err := svc.ResetProgress(ctx, userA, lessonA)
	require.NoError(t, err)
	assert.False(t, rec.Completed)

	require.NoError(t, svc.EndSession(ctx, userA, lessonA))
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetProgress_Absent(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)

	repo.On("Get", mock.Anything, userA, lessonA).Return(nil, nil)

	rec, err := svc.GetProgress(context.Background(), userA, lessonA)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestShutdown_FlushesPendingAndRejectsNewReports(t *testing.T) {
	repo := new(MockProgressRepository)
	svc := newTestProgressService(t, repo, time.Hour)
	ctx := context.Background()

	repo.On("Upsert", mock.Anything, userA, lessonA, positionIs(5)).Return(&models.ProgressRecord{}, nil).Once()
	repo.On("Upsert", mock.Anything, userB, lessonA, positionIs(6)).Return(&models.ProgressRecord{}, nil).Once()

	require.NoError(t, svc.ReportPosition(ctx, pos(userA, lessonA, 5)))
	require.NoError(t, svc.ReportPosition(ctx, pos(userB, lessonA, 6)))
	require.NoError(t, svc.Shutdown(ctx))
	repo.AssertExpectations(t)

	err := svc.ReportPosition(ctx, pos(userA, lessonA, 7))
	assert.ErrorIs(t, err, playback.ErrCoalescerClosed)
}
