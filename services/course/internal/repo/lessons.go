package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lms/services/course/internal/models"
)

var ErrLessonSetMismatch = errors.New("lesson ids do not match the course")

type LessonPatch struct {
	Title         *string
	Content       *string
	VideoURL      *string
	DurationMin   *int
	IsFreePreview *bool
}

// CreateLesson appends the lesson when Position is zero. Enrollment progress
// of the course is rederived in the same transaction.
func (r *GormRepo) CreateLesson(ctx context.Context, l *models.Lesson) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if l.Position <= 0 {
			var last int
			if err := tx.Model(&models.Lesson{}).
				Where("course_id = ?", l.CourseID).
				Select("COALESCE(MAX(position), 0)").
				Scan(&last).Error; err != nil {
				return err
			}
			l.Position = last + 1
		}
		if err := tx.Create(l).Error; err != nil {
			return err
		}
		_, err := syncProgress(tx, l.CourseID)
		return err
	})
}

func (r *GormRepo) LessonsByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Lesson, error) {
	items := []models.Lesson{}
	err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC").Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *GormRepo) LessonByID(ctx context.Context, courseID, lessonID uuid.UUID) (*models.Lesson, error) {
	var l models.Lesson
	err := r.DB.WithContext(ctx).Where("id = ? AND course_id = ?", lessonID, courseID).First(&l).Error
	return notFound(&l, err)
}

func (r *GormRepo) CountLessons(ctx context.Context, courseID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}

func (r *GormRepo) UpdateLesson(ctx context.Context, courseID, lessonID uuid.UUID, patch LessonPatch) (*models.Lesson, error) {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.VideoURL != nil {
		updates["video_url"] = *patch.VideoURL
	}
	if patch.DurationMin != nil {
		updates["duration_min"] = *patch.DurationMin
	}
	if patch.IsFreePreview != nil {
		updates["is_free_preview"] = *patch.IsFreePreview
	}

	var l models.Lesson
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Where("id = ? AND course_id = ?", lessonID, courseID)
		if err := scope.First(&l).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Lesson{}).Where("id = ?", lessonID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", lessonID).First(&l).Error
	})
	return notFound(&l, err)
}

// DeleteLesson drops the lesson with its completions and rederives
// enrollment progress of the course.
func (r *GormRepo) DeleteLesson(ctx context.Context, courseID, lessonID uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := affected(tx.Where("id = ? AND course_id = ?", lessonID, courseID).Delete(&models.Lesson{})); err != nil {
			return err
		}
		if err := tx.Where("lesson_id = ?", lessonID).Delete(&models.LessonCompletion{}).Error; err != nil {
			return err
		}
		_, err := syncProgress(tx, courseID)
		return err
	})
}

// ReorderLessons assigns positions 1..n in the given order. ids must name every
// lesson of the course exactly once.
func (r *GormRepo) ReorderLessons(ctx context.Context, courseID uuid.UUID, ids []uuid.UUID) ([]models.Lesson, error) {
	var out []models.Lesson
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uuid.UUID
		if err := tx.Model(&models.Lesson{}).Where("course_id = ?", courseID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if len(existing) != len(ids) {
			return ErrLessonSetMismatch
		}
		known := make(map[uuid.UUID]bool, len(existing))
		for _, id := range existing {
			known[id] = true
		}
		for _, id := range ids {
			if !known[id] {
				return ErrLessonSetMismatch
			}
			delete(known, id)
		}

		for i, id := range ids {
			if err := tx.Model(&models.Lesson{}).Where("id = ?", id).Update("position", i+1).Error; err != nil {
				return err
			}
		}
		return tx.Where("course_id = ?", courseID).Order("position ASC").Find(&out).Error
	})
	return out, err
}
