package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
)

type Course struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InstructorID    uuid.UUID `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Title           string    `gorm:"not null" json:"title"`
	Description     string    `gorm:"not null;default:''" json:"description"`
	Category        string    `gorm:"index" json:"category"`
	Price           float64   `gorm:"not null;default:0" json:"price"`
	IsPublished     bool      `gorm:"not null;default:false;index" json:"is_published"`
	EnrollmentCount int       `gorm:"not null;default:0" json:"enrollment_count"`
	AverageRating   float64   `gorm:"not null;default:0" json:"average_rating"`
	ReviewCount     int       `gorm:"not null;default:0" json:"review_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c *Course) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Lesson struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID      uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title         string    `gorm:"not null" json:"title"`
	Content       string    `json:"content,omitempty"`
	VideoURL      string    `json:"video_url,omitempty"`
	Position      int       `gorm:"not null;default:0" json:"position"`
	DurationMin   int       `gorm:"not null;default:0" json:"duration_min"`
	IsFreePreview bool      `gorm:"not null;default:false" json:"is_free_preview"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (l *Lesson) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type Enrollment struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course;index" json:"course_id"`
	Progress    int        `gorm:"not null;default:0" json:"progress"`
	Status      string     `gorm:"not null;default:active" json:"status"`
	EnrolledAt  time.Time  `gorm:"not null" json:"enrolled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type LessonCompletion struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_completion_user_lesson;index:idx_completion_user_course" json:"user_id"`
	LessonID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_completion_user_lesson" json:"lesson_id"`
	CourseID    uuid.UUID `gorm:"type:uuid;not null;index:idx_completion_user_course" json:"course_id"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
}

type WishlistItem struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_wishlist_user_course" json:"user_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_wishlist_user_course" json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Review struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_review_user_course" json:"user_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_review_user_course;index" json:"course_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func All() []any {
	return []any{&Course{}, &Lesson{}, &Enrollment{}, &LessonCompletion{}, &WishlistItem{}, &Review{}}
}
