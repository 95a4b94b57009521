package service

import (
	"context"
	"errors"
	"time"

	"coursehub/internal/events"
	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/microservices/http-api/repository"
	"coursehub/internal/microservices/playback"
	"coursehub/internal/shared"
	"coursehub/internal/workerpool"

	"go.uber.org/zap"
)

// writeTimeout caps a single coalesced write including its retries.
const writeTimeout = 15 * time.Second

// ProgressService is the progress update protocol: position reports are coalesced
// per (user, lesson), completions are written immediately.
type ProgressService interface {
	ReportPosition(ctx context.Context, update dto.PositionUpdate) error
	ReportCompletion(ctx context.Context, event dto.CompletionEvent) (*models.ProgressRecord, error)
	EndSession(ctx context.Context, userID, lessonID string) error
	UpdateNotes(ctx context.Context, userID, lessonID, notes string) (*models.ProgressRecord, error)
	ResetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error)
	GetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error)
	Shutdown(ctx context.Context) error
}

type ProgressServiceConfig struct {
	Window          time.Duration
	Workers         int
	PositionRetry   RetryPolicy
	CompletionRetry RetryPolicy
}

func DefaultProgressServiceConfig() ProgressServiceConfig {
	return ProgressServiceConfig{
		Window:          playback.DefaultWindow,
		Workers:         8,
		PositionRetry:   PositionRetry,
		CompletionRetry: CompletionRetry,
	}
}

type progressService struct {
	repo      repository.ProgressRepository
	publisher *events.Publisher
	pool      *workerpool.WorkerPool
	coalescer *playback.Coalescer
	cfg       ProgressServiceConfig
	logger    *zap.Logger
}

func NewProgressService(repo repository.ProgressRepository, publisher *events.Publisher, cfg ProgressServiceConfig, logger *zap.Logger) ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &progressService{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("progress"),
	}
	s.pool = workerpool.New(cfg.Workers, s.logger)
	s.pool.Start()
	s.coalescer = playback.NewCoalescer(cfg.Window, s.flushPosition, s.logger, playback.WithPool(s.pool))
	return s
}

func (s *progressService) ReportPosition(ctx context.Context, update dto.PositionUpdate) error {
	if err := validatePositionUpdate(update); err != nil {
		return err
	}
	return s.coalescer.Submit(update)
}

// flushPosition is the coalescer's write. It never downgrades completion:
// the store OR-merges completed and this path does not send it.
func (s *progressService) flushPosition(ctx context.Context, u dto.PositionUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	pos := u.PositionSeconds
	fields := repository.ProgressFields{
		WatchTimeSeconds: &pos,
		PositionSeconds:  &pos,
	}
	if u.DurationSeconds > 0 {
		dur := u.DurationSeconds
		fields.DurationSeconds = &dur
	}

	_, err := retryWrite(ctx, s.cfg.PositionRetry, s.logger, func() (*models.ProgressRecord, error) {
		return s.repo.Upsert(ctx, u.UserID, u.LessonID, fields)
	})
	if err != nil {
		fieldsLog := []zap.Field{
			zap.String("user_id", u.UserID),
			zap.String("lesson_id", u.LessonID),
			zap.Float64("position_seconds", pos),
			zap.Error(err),
		}
		if errors.Is(err, shared.ErrReference) {
			s.logger.Info("position_write_rejected", fieldsLog...)
		} else {
			s.logger.Warn("position_write_dropped", fieldsLog...)
		}
		return err
	}
	return nil
}

func (s *progressService) ReportCompletion(ctx context.Context, event dto.CompletionEvent) (*models.ProgressRecord, error) {
	if err := validateCompletion(event); err != nil {
		return nil, err
	}
	s.coalescer.Discard(playback.Key{UserID: event.UserID, LessonID: event.LessonID})

	done := true
	fields := repository.ProgressFields{Completed: &done}
	if event.DurationSeconds > 0 {
		d := event.DurationSeconds
		fields.DurationSeconds = &d
		fields.PositionSeconds = &d
		fields.WatchTimeSeconds = &d
	}

	rec, err := retryWrite(ctx, s.cfg.CompletionRetry, s.logger, func() (*models.ProgressRecord, error) {
		return s.repo.Upsert(ctx, event.UserID, event.LessonID, fields)
	})
	if err != nil {
		s.logger.Error("completion_write_failed",
			zap.String("user_id", event.UserID),
			zap.String("lesson_id", event.LessonID),
			zap.Error(err),
		)
		return nil, err
	}

	s.publisher.LessonCompleted(event.UserID, event.LessonID, event.DurationSeconds)
	s.logger.Debug("lesson_completed", zap.String("user_id", event.UserID), zap.String("lesson_id", event.LessonID))
	return rec, nil
}

// EndSession flushes whatever the coalescer holds for the key.
func (s *progressService) EndSession(ctx context.Context, userID, lessonID string) error {
	if err := validateKey(userID, lessonID); err != nil {
		return err
	}
	return s.coalescer.Flush(ctx, playback.Key{UserID: userID, LessonID: lessonID})
}

func (s *progressService) UpdateNotes(ctx context.Context, userID, lessonID, notes string) (*models.ProgressRecord, error) {
	if err := validateKey(userID, lessonID); err != nil {
		return nil, err
	}
	if err := validateNotes(notes); err != nil {
		return nil, err
	}
	return retryWrite(ctx, s.cfg.PositionRetry, s.logger, func() (*models.ProgressRecord, error) {
		return s.repo.Upsert(ctx, userID, lessonID, repository.ProgressFields{Notes: &notes})
	})
}

func (s *progressService) ResetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	if err := validateKey(userID, lessonID); err != nil {
		return nil, err
	}
	s.coalescer.Discard(playback.Key{UserID: userID, LessonID: lessonID})

	rec, err := s.repo.Reset(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.publisher.ProgressReset(userID, lessonID)
		s.logger.Info("progress_reset", zap.String("user_id", userID), zap.String("lesson_id", lessonID))
	}
	return rec, nil
}

func (s *progressService) GetProgress(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	if err := validateKey(userID, lessonID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID, lessonID)
}

// Shutdown flushes every buffered position, then drains the write pool.
func (s *progressService) Shutdown(ctx context.Context) error {
	closeErr := s.coalescer.Close(ctx)
	poolErr := s.pool.Shutdown(ctx)
	return errors.Join(closeErr, poolErr)
}
