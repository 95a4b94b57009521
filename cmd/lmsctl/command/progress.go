package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coursehub/internal/events"
	"coursehub/internal/microservices/http-api/dto"
	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/microservices/http-api/repository"
	"coursehub/internal/microservices/http-api/service"
	"coursehub/internal/shared"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect and reset learner progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one learner's progress on one lesson",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		lessonID, _ := cmd.Flags().GetString("lesson")

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		lesson, err := resolveTarget(ctx, s.db, userID, lessonID)
		if err != nil {
			return err
		}
		rec, err := repository.NewProgressRepository(s.db).Get(ctx, userID, lessonID)
		if err != nil {
			return err
		}
		if rec == nil {
			color.Yellow("No progress recorded for %q.", lesson.Title)
			return nil
		}
		fmt.Printf("Title:    %s\n", lesson.Title)
		printRecord(rec)
		return nil
	},
}

var progressCourseCmd = &cobra.Command{
	Use:   "course",
	Short: "Show a learner's progress across a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		courseRef, _ := cmd.Flags().GetString("course")

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		catalog := repository.NewCatalogRepository(s.db)
		course, err := resolveCourse(ctx, catalog, courseRef)
		if err != nil {
			return err
		}
		agg := service.NewAggregator(repository.NewProgressRepository(s.db), catalog, s.logger)
		printCourseView(agg.ComputeCourseProgress(ctx, userID, course))

		ptr, ok := agg.ComputeResumePointer(ctx, userID, course)
		if !ok {
			color.Yellow("Course has no lessons.")
			return nil
		}
		fmt.Printf("Resume:   lesson %s (%s)\n", ptr.LessonID, ptr.Reason)
		return nil
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a learner's progress on one lesson",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		lessonID, _ := cmd.Flags().GetString("lesson")

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if _, err := resolveTarget(ctx, s.db, userID, lessonID); err != nil {
			return err
		}

		var conn events.Conn
		nc, err := events.Connect(s.cfg.NATSURL, s.logger)
		if err != nil {
			s.logger.Warn("nats_unavailable", zap.Error(err))
		}
		if nc != nil {
			defer nc.Drain()
			conn = nc
		}

		svc := service.NewProgressService(
			repository.NewProgressRepository(s.db),
			events.NewPublisher(conn, s.logger),
			service.DefaultProgressServiceConfig(),
			s.logger,
		)
		defer svc.Shutdown(ctx)

		rec, err := svc.ResetProgress(ctx, userID, lessonID)
		if err != nil {
			return err
		}
		if rec == nil {
			color.Yellow("Nothing to reset.")
			return nil
		}
		color.Green("✓ Progress reset")
		printRecord(rec)
		return nil
	},
}

// resolveTarget checks that both sides of a (user, lesson) key exist and returns the lesson.
func resolveTarget(ctx context.Context, db *gorm.DB, userID, lessonID string) (*models.Lesson, error) {
	ok, err := repository.NewUserRepository(db).Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ReferenceError("user", userID)
	}
	lesson, err := repository.NewCatalogRepository(db).GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, shared.ReferenceError("lesson", lessonID)
	}
	return lesson, nil
}

// resolveCourse accepts either a course id or its slug.
func resolveCourse(ctx context.Context, catalog repository.CatalogRepository, ref string) (*models.Course, error) {
	var (
		course *models.Course
		err    error
	)
	if _, perr := uuid.Parse(ref); perr == nil {
		course, err = catalog.GetCourseStructure(ctx, ref)
	} else {
		course, err = catalog.GetCourseBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, fmt.Errorf("%w: %s", service.ErrCourseNotFound, ref)
	}
	return course, nil
}

func printRecord(rec *models.ProgressRecord) {
	status := color.HiBlackString("in progress")
	if rec.Completed {
		status = color.GreenString("completed")
	}
	fmt.Printf("User:     %s\n", rec.UserID)
	fmt.Printf("Lesson:   %s\n", rec.LessonID)
	fmt.Printf("Status:   %s\n", status)
	fmt.Printf("Position: %s / %s\n", formatSeconds(rec.EffectivePosition()), formatSeconds(rec.DurationSeconds))
	fmt.Printf("Progress: %s %d%%\n", progressBar(rec.Percentage(), 20), rec.Percentage())
	if rec.Notes != "" {
		fmt.Printf("Notes:    %s\n", rec.Notes)
	}
	fmt.Printf("Watched:  %s\n", rec.LastWatchedAt.Local().Format("2006-01-02 15:04:05 MST"))
}

func printCourseView(view dto.CourseProgressView) {
	title := view.CourseTitle
	if title == "" {
		title = view.CourseID
	}
	fmt.Printf("Course:   %s\n", title)
	fmt.Printf("Progress: %s %d%%\n", progressBar(view.Percentage, 20), view.Percentage)
	fmt.Printf("Lessons:  %d/%d completed\n", view.CompletedLessons, view.TotalLessons)
	if view.Degraded {
		color.Yellow("⚠ progress could not be read; figures are incomplete")
	}
}

// progressBar renders pct (0-100) as a fixed width bar.
func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func init() {
	for _, c := range []*cobra.Command{progressShowCmd, progressResetCmd} {
		c.Flags().String("user", "", "learner user id")
		c.Flags().String("lesson", "", "lesson id")
		_ = c.MarkFlagRequired("user")
		_ = c.MarkFlagRequired("lesson")
	}
	progressCourseCmd.Flags().String("user", "", "learner user id")
	progressCourseCmd.Flags().String("course", "", "course id or slug")
	_ = progressCourseCmd.MarkFlagRequired("user")
	_ = progressCourseCmd.MarkFlagRequired("course")

	progressCmd.AddCommand(progressShowCmd, progressCourseCmd, progressResetCmd)
}
