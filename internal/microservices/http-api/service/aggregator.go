package service

import (
	"context"
	"errors"
	"math"
	"sort"

	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/microservices/http-api/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrCourseEmpty    = errors.New("course has no lessons")
)

const (
	DefaultContinueWatchingLimit = 10
	MaxContinueWatchingLimit     = 50
)

var tracer = otel.Tracer("coursehub/service")

// Aggregator derives course level views from stored progress. Nothing it computes is persisted.
type Aggregator interface {
	ComputeCourseProgress(ctx context.Context, userID string, course *models.Course) dto.CourseProgressView
	ComputeResumePointer(ctx context.Context, userID string, course *models.Course) (dto.ResumePointer, bool)
	CourseProgressByID(ctx context.Context, userID, courseID string) (dto.CourseProgressView, error)
	ResumePointerByID(ctx context.Context, userID, courseID string) (dto.ResumePointer, error)
	ContinueWatching(ctx context.Context, userID string, limit int) dto.ContinueWatchingList
	Dashboard(ctx context.Context, userID string) dto.DashboardView
}

type aggregator struct {
	progress repository.ProgressRepository
	catalog  repository.CatalogRepository
	logger   *zap.Logger
}

func NewAggregator(progress repository.ProgressRepository, catalog repository.CatalogRepository, logger *zap.Logger) Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &aggregator{progress: progress, catalog: catalog, logger: logger.Named("aggregator")}
}

// lessonPercentage prefers the duration stored with the record and falls back to the catalog's.
func lessonPercentage(rec *models.ProgressRecord, lesson models.Lesson) int {
	if rec == nil {
		return 0
	}
	duration := rec.DurationSeconds
	if duration <= 0 {
		duration = lesson.DurationSeconds
	}
	return models.PercentageOf(rec.Completed, rec.EffectivePosition(), duration)
}

// orderedLessons flattens the course by module order, then lesson order, id breaking ties.
func orderedLessons(course *models.Course) []models.Lesson {
	modules := make([]models.Module, len(course.Modules))
	copy(modules, course.Modules)
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].OrderIndex != modules[j].OrderIndex {
			return modules[i].OrderIndex < modules[j].OrderIndex
		}
		return modules[i].ID < modules[j].ID
	})

	var out []models.Lesson
	for _, m := range modules {
		lessons := make([]models.Lesson, len(m.Lessons))
		copy(lessons, m.Lessons)
		sort.SliceStable(lessons, func(i, j int) bool {
			if lessons[i].OrderIndex != lessons[j].OrderIndex {
				return lessons[i].OrderIndex < lessons[j].OrderIndex
			}
			return lessons[i].ID < lessons[j].ID
		})
		for _, l := range lessons {
			if l.ModuleID == "" {
				l.ModuleID = m.ID
			}
			out = append(out, l)
		}
	}
	return out
}

func (a *aggregator) ComputeCourseProgress(ctx context.Context, userID string, course *models.Course) dto.CourseProgressView {
	ctx, span := tracer.Start(ctx, "aggregate.course_progress")
	defer span.End()
	span.SetAttributes(attribute.String("course_id", course.ID))

	view := dto.CourseProgressView{CourseID: course.ID, CourseTitle: course.Title}
	lessons := orderedLessons(course)
	view.TotalLessons = len(lessons)
	if len(lessons) == 0 {
		return view
	}

	records, err := a.progress.ListByUser(ctx, userID, course.LessonIDs())
	if err != nil {
		span.RecordError(err)
		a.logger.Warn("course_progress_degraded",
			zap.String("user_id", userID),
			zap.String("course_id", course.ID),
			zap.Error(err),
		)
		view.Degraded = true
		return view
	}

	sum := 0
	for _, l := range lessons {
		rec := records[l.ID]
		if rec != nil && rec.Completed {
			view.CompletedLessons++
		}
		sum += lessonPercentage(rec, l)
	}
	view.Percentage = int(math.Round(float64(sum) / float64(len(lessons))))
	return view
}

func (a *aggregator) ComputeResumePointer(ctx context.Context, userID string, course *models.Course) (dto.ResumePointer, bool) {
	lessons := orderedLessons(course)
	if len(lessons) == 0 {
		return dto.ResumePointer{}, false
	}
	pointer := func(l models.Lesson, reason string) dto.ResumePointer {
		return dto.ResumePointer{CourseID: course.ID, ModuleID: l.ModuleID, LessonID: l.ID, Reason: reason}
	}

	records, err := a.progress.ListByUser(ctx, userID, course.LessonIDs())
	if err != nil {
		a.logger.Warn("resume_pointer_degraded",
			zap.String("user_id", userID),
			zap.String("course_id", course.ID),
			zap.Error(err),
		)
		return pointer(lessons[0], dto.ResumeStart), true
	}
	if len(records) == 0 {
		return pointer(lessons[0], dto.ResumeStart), true
	}

	for _, l := range lessons {
		if rec := records[l.ID]; rec == nil || !rec.Completed {
			return pointer(l, dto.ResumeNextIncomplete), true
		}
	}
	return pointer(lessons[0], dto.ResumeRestart), true
}

func (a *aggregator) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := a.catalog.GetCourseStructure(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	return course, nil
}

func (a *aggregator) CourseProgressByID(ctx context.Context, userID, courseID string) (dto.CourseProgressView, error) {
	course, err := a.loadCourse(ctx, courseID)
	if err != nil {
		return dto.CourseProgressView{}, err
	}
	return a.ComputeCourseProgress(ctx, userID, course), nil
}

func (a *aggregator) ResumePointerByID(ctx context.Context, userID, courseID string) (dto.ResumePointer, error) {
	course, err := a.loadCourse(ctx, courseID)
	if err != nil {
		return dto.ResumePointer{}, err
	}
	ptr, ok := a.ComputeResumePointer(ctx, userID, course)
	if !ok {
		return dto.ResumePointer{}, ErrCourseEmpty
	}
	return ptr, nil
}

// ContinueWatching lists started but unfinished lessons, most recent first.
// A failed read yields an empty, degraded list rather than an error.
func (a *aggregator) ContinueWatching(ctx context.Context, userID string, limit int) dto.ContinueWatchingList {
	ctx, span := tracer.Start(ctx, "aggregate.continue_watching")
	defer span.End()

	if limit <= 0 {
		limit = DefaultContinueWatchingLimit
	}
	if limit > MaxContinueWatchingLimit {
		limit = MaxContinueWatchingLimit
	}
	degraded := func(step string, err error) dto.ContinueWatchingList {
		span.RecordError(err)
		a.logger.Warn("continue_watching_degraded",
			zap.String("user_id", userID),
			zap.String("step", step),
			zap.Error(err),
		)
		return dto.ContinueWatchingList{Items: []dto.ContinueWatchingItem{}, Degraded: true}
	}

	// completed rows are filtered out below, so over-fetch
	recent, err := a.progress.ListRecent(ctx, userID, limit*4)
	if err != nil {
		return degraded("list_recent", err)
	}

	candidates := make([]models.ProgressRecord, 0, len(recent))
	ids := make([]string, 0, len(recent))
	for _, rec := range recent {
		if rec.Completed || rec.EffectivePosition() <= 0 {
			continue
		}
		candidates = append(candidates, rec)
		ids = append(ids, rec.LessonID)
	}

	locations, err := a.catalog.LocateLessons(ctx, ids)
	if err != nil {
		return degraded("locate_lessons", err)
	}

	items := make([]dto.ContinueWatchingItem, 0, limit)
	for i := range candidates {
		rec := &candidates[i]
		loc, ok := locations[rec.LessonID]
		if !ok {
			continue // lesson removed from the catalog
		}
		duration := rec.DurationSeconds
		if duration <= 0 {
			duration = loc.Lesson.DurationSeconds
		}
		items = append(items, dto.ContinueWatchingItem{
			CourseID:        loc.CourseID,
			ModuleID:        loc.Lesson.ModuleID,
			LessonID:        rec.LessonID,
			LessonTitle:     loc.Lesson.Title,
			PositionSeconds: rec.EffectivePosition(),
			DurationSeconds: duration,
			Percentage:      lessonPercentage(rec, loc.Lesson),
			LastWatchedAt:   rec.LastWatchedAt,
		})
		if len(items) == limit {
			break
		}
	}
	return dto.ContinueWatchingList{Items: items}
}

// Dashboard computes progress for every published course. The whole view is
// degraded when the catalog is unreadable; single courses degrade on their own.
func (a *aggregator) Dashboard(ctx context.Context, userID string) dto.DashboardView {
	courses, err := a.catalog.ListCourses(ctx)
	if err != nil {
		a.logger.Warn("dashboard_degraded", zap.String("user_id", userID), zap.Error(err))
		return dto.DashboardView{Courses: []dto.CourseProgressView{}, Degraded: true}
	}
	view := dto.DashboardView{Courses: make([]dto.CourseProgressView, 0, len(courses))}
	for i := range courses {
		cv := a.ComputeCourseProgress(ctx, userID, &courses[i])
		if cv.Degraded {
			view.Degraded = true
		}
		view.Courses = append(view.Courses, cv)
	}
	return view
}
