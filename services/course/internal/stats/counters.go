// Package stats maintains the denormalized counters on courses. Counters are
// adjusted after each mutation on a best-effort basis; Reconciler periodically
// recomputes them from the source rows.
package stats

import (
	"context"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lms/services/course/internal/models"
)

type Counters struct {
	DB *gorm.DB
}

// IncEnrollment adds delta to enrollment_count, never going below zero.
func (c *Counters) IncEnrollment(ctx context.Context, courseID uuid.UUID, delta int) error {
	return c.DB.WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("enrollment_count", gorm.Expr(
			"CASE WHEN enrollment_count + ? < 0 THEN 0 ELSE enrollment_count + ? END", delta, delta,
		)).Error
}

type ratingRow struct {
	CourseID uuid.UUID
	Count    int
	Average  float64
}

func (c *Counters) RecomputeRating(ctx context.Context, courseID uuid.UUID) error {
	var row ratingRow
	if err := c.DB.WithContext(ctx).Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("course_id = ?", courseID).
		Scan(&row).Error; err != nil {
		return err
	}
	return c.DB.WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", courseID).
		UpdateColumns(map[string]any{
			"review_count":   row.Count,
			"average_rating": roundRating(row.Average),
		}).Error
}

func roundRating(v float64) float64 {
	return math.Round(v*100) / 100
}
