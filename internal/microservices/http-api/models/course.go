package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Slug        string    `gorm:"uniqueIndex;size:200;not null" json:"slug" yaml:"slug"`
	Title       string    `gorm:"not null" json:"title" yaml:"title"`
	Description string    `gorm:"type:text" json:"description,omitempty" yaml:"description"`
	Published   bool      `gorm:"not null;default:false" json:"published" yaml:"published"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`

	Modules []Module `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE;" json:"modules,omitempty" yaml:"modules"`
}

func (course *Course) BeforeCreate(tx *gorm.DB) (err error) {
	if course.ID == "" {
		course.ID = uuid.New().String()
	}
	return
}

func (Course) TableName() string {
	return "courses"
}

// LessonIDs lists every lesson of the course in structure order.
func (course *Course) LessonIDs() []string {
	var ids []string
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// Module groups lessons inside a course.
type Module struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	CourseID   string         `gorm:"type:uuid;not null;index:idx_module_order" json:"course_id" yaml:"-"`
	Title      string         `gorm:"not null" json:"title" yaml:"title"`
	OrderIndex int            `gorm:"not null;default:0;index:idx_module_order" json:"order_index" yaml:"order"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`

	Lessons []Lesson `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE;" json:"lessons,omitempty" yaml:"lessons"`
}

func (module *Module) BeforeCreate(tx *gorm.DB) (err error) {
	if module.ID == "" {
		module.ID = uuid.New().String()
	}
	return
}

func (Module) TableName() string {
	return "course_modules"
}

// Lesson is a single playable video (a sub-lesson in the portal UI).
type Lesson struct {
	ID              string         `gorm:"primaryKey;type:uuid" json:"id"`
	ModuleID        string         `gorm:"type:uuid;not null;index:idx_lesson_order" json:"module_id" yaml:"-"`
	Title           string         `gorm:"not null" json:"title" yaml:"title"`
	OrderIndex      int            `gorm:"not null;default:0;index:idx_lesson_order" json:"order_index" yaml:"order"`
	DurationSeconds float64        `gorm:"not null;default:0" json:"duration_seconds" yaml:"duration_seconds"`
	PlaybackID      string         `json:"playback_id,omitempty" yaml:"playback_id"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-" yaml:"-"`
}

func (lesson *Lesson) BeforeCreate(tx *gorm.DB) (err error) {
	if lesson.ID == "" {
		lesson.ID = uuid.New().String()
	}
	return
}

func (Lesson) TableName() string {
	return "lessons"
}
