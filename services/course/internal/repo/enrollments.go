package repo

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/lms/pkg/db"
	"github.com/Skotchmaster/lms/services/course/internal/models"
)

func (r *GormRepo) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = models.EnrollmentActive
	}
	err := r.DB.WithContext(ctx).Create(e).Error
	if db.IsUniqueViolation(err) {
		return ErrAlreadyEnrolled
	}
	return err
}

func (r *GormRepo) Enrollment(ctx context.Context, userID, courseID uuid.UUID) (*models.Enrollment, error) {
	var e models.Enrollment
	err := r.DB.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *GormRepo) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&n).Error
	return n > 0, err
}

// DeleteEnrollment also forgets the user's completed lessons for the course.
func (r *GormRepo) DeleteEnrollment(ctx context.Context, userID, courseID uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND course_id = ?", userID, courseID).Delete(&models.Enrollment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotEnrolled
		}
		return tx.Where("user_id = ? AND course_id = ?", userID, courseID).Delete(&models.LessonCompletion{}).Error
	})
}

func (r *GormRepo) EnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Enrollment, error) {
	items := []models.Enrollment{}
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("enrolled_at DESC").Find(&items).Error
	return items, err
}

func (r *GormRepo) CompletedLessonIDs(ctx context.Context, userID, courseID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.DB.WithContext(ctx).Model(&models.LessonCompletion{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Pluck("lesson_id", &ids).Error
	return ids, err
}

// Progress is round(100*done/total), clamped to [0,100].
func Progress(done, total int64) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(done) / float64(total)))
	return max(0, min(100, p))
}

// CompleteLesson records the completion and recomputes progress in one
// transaction. The enrollment row is locked first so concurrent completions
// for the same user and course serialize. created is false when the lesson
// was already completed.
func (r *GormRepo) CompleteLesson(ctx context.Context, userID, courseID, lessonID uuid.UUID) (enrollment *models.Enrollment, created bool, err error) {
	var e models.Enrollment
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND course_id = ?", userID, courseID).
			First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotEnrolled
		}
		if err != nil {
			return err
		}

		var lessons int64
		if err := tx.Model(&models.Lesson{}).Where("id = ? AND course_id = ?", lessonID, courseID).Count(&lessons).Error; err != nil {
			return err
		}
		if lessons == 0 {
			return ErrNotFound
		}

		now := time.Now().UTC()
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.LessonCompletion{
			UserID:      userID,
			LessonID:    lessonID,
			CourseID:    courseID,
			CompletedAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0

		var done, total int64
		if err := tx.Model(&models.LessonCompletion{}).
			Where("user_id = ? AND course_id = ?", userID, courseID).
			Count(&done).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&total).Error; err != nil {
			return err
		}

		updates := applyProgress(&e, Progress(done, total), now)
		if updates == nil {
			return nil
		}
		return tx.Model(&models.Enrollment{}).Where("id = ?", e.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &e, created, nil
}

// applyProgress moves e to progress and returns the columns that changed, or
// nil when nothing did. Reaching 100 completes the enrollment; dropping below
// it reopens a completed one.
func applyProgress(e *models.Enrollment, progress int, now time.Time) map[string]any {
	complete := progress == 100
	if e.Progress == progress && complete == (e.Status == models.EnrollmentCompleted) {
		return nil
	}
	e.Progress = progress
	updates := map[string]any{"progress": progress}
	switch {
	case complete && e.Status != models.EnrollmentCompleted:
		e.Status = models.EnrollmentCompleted
		e.CompletedAt = &now
		updates["status"] = e.Status
		updates["completed_at"] = now
	case !complete && e.Status == models.EnrollmentCompleted:
		e.Status = models.EnrollmentActive
		e.CompletedAt = nil
		updates["status"] = e.Status
		updates["completed_at"] = nil
	}
	return updates
}

type doneRow struct {
	UserID uuid.UUID
	Done   int64
}

// syncProgress rederives progress and status of every enrollment in the
// course from its completion rows. It returns how many enrollments changed.
func syncProgress(tx *gorm.DB, courseID uuid.UUID) (int, error) {
	var enrollments []models.Enrollment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("course_id = ?", courseID).
		Order("id ASC").
		Find(&enrollments).Error; err != nil {
		return 0, err
	}
	if len(enrollments) == 0 {
		return 0, nil
	}

	var total int64
	if err := tx.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&total).Error; err != nil {
		return 0, err
	}
	var rows []doneRow
	if err := tx.Model(&models.LessonCompletion{}).
		Select("user_id, COUNT(*) AS done").
		Where("course_id = ?", courseID).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return 0, err
	}
	done := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		done[row.UserID] = row.Done
	}

	now := time.Now().UTC()
	changed := 0
	for i := range enrollments {
		e := &enrollments[i]
		updates := applyProgress(e, Progress(done[e.UserID], total), now)
		if updates == nil {
			continue
		}
		if err := tx.Model(&models.Enrollment{}).Where("id = ?", e.ID).Updates(updates).Error; err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// SyncProgress repairs progress for every enrollment in the course.
func (r *GormRepo) SyncProgress(ctx context.Context, courseID uuid.UUID) (int, error) {
	var changed int
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = syncProgress(tx, courseID)
		return err
	})
	return changed, err
}
