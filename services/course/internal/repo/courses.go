package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lms/services/course/internal/models"
)

type CourseFilter struct {
	PublishedOnly bool
	InstructorID  *uuid.UUID
	Category      string
}

type CoursePatch struct {
	Title       *string
	Description *string
	Category    *string
	Price       *float64
}

func (f CourseFilter) apply(q *gorm.DB) *gorm.DB {
	if f.PublishedOnly {
		q = q.Where("is_published = ?", true)
	}
	if f.InstructorID != nil {
		q = q.Where("instructor_id = ?", *f.InstructorID)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	return q
}

func (r *GormRepo) CreateCourse(ctx context.Context, c *models.Course) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *GormRepo) CourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var c models.Course
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error
	return notFound(&c, err)
}

func (r *GormRepo) CoursesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Course, error) {
	out := make(map[uuid.UUID]models.Course, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.Course
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, c := range items {
		out[c.ID] = c
	}
	return out, nil
}

func (r *GormRepo) ListCourses(ctx context.Context, f CourseFilter, offset, limit int) ([]models.Course, int64, error) {
	var total int64
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Course{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	items := make([]models.Course, 0, limit)
	if err := f.apply(r.DB.WithContext(ctx)).
		Order("created_at DESC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchCourses is the database fallback used when no search cluster is
// configured. It matches published courses by title or description.
func (r *GormRepo) SearchCourses(ctx context.Context, q string, offset, limit int) ([]models.Course, int64, error) {
	pattern := "%" + strings.ToLower(escapeLike(q)) + "%"
	where := "is_published = ? AND (LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\')"

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Course{}).
		Where(where, true, pattern, pattern).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	items := make([]models.Course, 0, limit)
	if err := r.DB.WithContext(ctx).
		Where(where, true, pattern, pattern).
		Order("enrollment_count DESC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *GormRepo) UpdateCourse(ctx context.Context, id uuid.UUID, patch CoursePatch) (*models.Course, error) {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Category != nil {
		updates["category"] = *patch.Category
	}
	if patch.Price != nil {
		updates["price"] = *patch.Price
	}
	return r.updateCourse(ctx, id, updates)
}

func (r *GormRepo) SetPublished(ctx context.Context, id uuid.UUID, published bool) (*models.Course, error) {
	return r.updateCourse(ctx, id, map[string]any{"is_published": published})
}

func (r *GormRepo) updateCourse(ctx context.Context, id uuid.UUID, updates map[string]any) (*models.Course, error) {
	var c models.Course
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Course{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&c).Error
	})
	return notFound(&c, err)
}

// DeleteCourse removes the course together with everything that references it.
func (r *GormRepo) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []any{&models.LessonCompletion{}, &models.Enrollment{}, &models.WishlistItem{}, &models.Review{}, &models.Lesson{}} {
			if err := tx.Where("course_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		return affected(tx.Where("id = ?", id).Delete(&models.Course{}))
	})
}
