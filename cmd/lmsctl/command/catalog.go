package command

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/microservices/http-api/repository"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the course catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <course.yaml>",
	Short: "Import a course structure from a YAML file",
	Long: `Import a course with its modules and lessons. Example file:

  slug: go-basics
  title: Go Basics
  published: true
  modules:
    - title: Getting started
      order: 1
      lessons:
        - title: Installing Go
          order: 1
          duration_seconds: 312`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		course, err := loadCourseFile(args[0])
		if err != nil {
			return err
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		if err := repository.NewCatalogRepository(s.db).ImportCourse(ctx, course); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		color.Green("✓ Imported course %q", course.Title)
		fmt.Printf("  ID:      %s\n", course.ID)
		fmt.Printf("  Slug:    %s\n", course.Slug)
		fmt.Printf("  Modules: %d\n", len(course.Modules))
		fmt.Printf("  Lessons: %d\n", len(course.LessonIDs()))
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		courses, err := repository.NewCatalogRepository(s.db).ListCourses(ctx)
		if err != nil {
			return err
		}
		if len(courses) == 0 {
			fmt.Println("No published courses.")
			return nil
		}
		for _, c := range courses {
			fmt.Printf("%s  %-24s %s (%d lessons)\n", c.ID, c.Slug, c.Title, len(c.LessonIDs()))
		}
		return nil
	},
}

// loadCourseFile parses and checks a course YAML file.
func loadCourseFile(path string) (*models.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var course models.Course
	if err := yaml.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := checkCourse(&course); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &course, nil
}

func checkCourse(c *models.Course) error {
	if c.Slug == "" || c.Title == "" {
		return fmt.Errorf("course slug and title are required")
	}
	for i, m := range c.Modules {
		if m.Title == "" {
			return fmt.Errorf("module %d has no title", i+1)
		}
		for j, l := range m.Lessons {
			if l.Title == "" {
				return fmt.Errorf("module %q lesson %d has no title", m.Title, j+1)
			}
			if l.DurationSeconds < 0 || math.IsNaN(l.DurationSeconds) || math.IsInf(l.DurationSeconds, 0) {
				return fmt.Errorf("lesson %q has an invalid duration", l.Title)
			}
		}
	}
	return nil
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd)
}
