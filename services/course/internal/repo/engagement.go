package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/lms/services/course/internal/models"
)

// AddToWishlist is idempotent.
func (r *GormRepo) AddToWishlist(ctx context.Context, userID, courseID uuid.UUID) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.WishlistItem{
		UserID:   userID,
		CourseID: courseID,
	}).Error
}

func (r *GormRepo) RemoveFromWishlist(ctx context.Context, userID, courseID uuid.UUID) error {
	return affected(r.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Delete(&models.WishlistItem{}))
}

func (r *GormRepo) WishlistCourseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.DB.WithContext(ctx).Model(&models.WishlistItem{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Pluck("course_id", &ids).Error
	return ids, err
}

// SaveReview creates the user's review of a course or replaces its rating and
// comment. created reports which of the two happened. The insert yields to a
// concurrent one on the unique (user_id, course_id) index, so racing first
// reviews end as one insert and one update.
func (r *GormRepo) SaveReview(ctx context.Context, rev *models.Review) (created bool, err error) {
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).Create(rev)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			created = true
			return nil
		}

		if err := tx.Model(&models.Review{}).Where("user_id = ? AND course_id = ?", rev.UserID, rev.CourseID).Updates(map[string]any{
			"rating":     rev.Rating,
			"comment":    rev.Comment,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		var stored models.Review
		if err := tx.Where("user_id = ? AND course_id = ?", rev.UserID, rev.CourseID).First(&stored).Error; err != nil {
			return err
		}
		*rev = stored
		return nil
	})
	return created, err
}

func (r *GormRepo) ReviewsByCourse(ctx context.Context, courseID uuid.UUID, offset, limit int) ([]models.Review, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Review{}).Where("course_id = ?", courseID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	items := make([]models.Review, 0, limit)
	if err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
