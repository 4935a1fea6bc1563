package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lms/services/course/internal/models"
	"github.com/Skotchmaster/lms/services/course/internal/repo"
	"github.com/Skotchmaster/lms/services/course/internal/search"
)

type Reconciler struct {
	DB *gorm.DB
	// Search, when set, receives every published course after each run.
	Search search.Index
	Logger *slog.Logger
}

type countRow struct {
	CourseID uuid.UUID
	Count    int
}

// RunOnce recomputes enrollment_count, review_count, average_rating and the
// progress of every enrollment, and rewrites what drifted. It returns how
// many courses needed a repair.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	db := r.DB.WithContext(ctx)

	var enrollRows []countRow
	if err := db.Model(&models.Enrollment{}).
		Select("course_id, COUNT(*) AS count").
		Group("course_id").
		Scan(&enrollRows).Error; err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	enrollments := make(map[uuid.UUID]int, len(enrollRows))
	for _, row := range enrollRows {
		enrollments[row.CourseID] = row.Count
	}

	var ratingRows []ratingRow
	if err := db.Model(&models.Review{}).
		Select("course_id, COUNT(*) AS count, AVG(rating) AS average").
		Group("course_id").
		Scan(&ratingRows).Error; err != nil {
		return 0, fmt.Errorf("aggregate reviews: %w", err)
	}
	ratings := make(map[uuid.UUID]ratingRow, len(ratingRows))
	for _, row := range ratingRows {
		ratings[row.CourseID] = row
	}

	var courses []models.Course
	if err := db.Find(&courses).Error; err != nil {
		return 0, fmt.Errorf("load courses: %w", err)
	}

	progress := &repo.GormRepo{DB: r.DB}
	repaired := 0
	for i := range courses {
		c := &courses[i]
		drifted := false

		wantEnroll := enrollments[c.ID]
		rating := ratings[c.ID]
		wantAvg := roundRating(rating.Average)
		if c.EnrollmentCount != wantEnroll || c.ReviewCount != rating.Count || math.Abs(c.AverageRating-wantAvg) >= 0.005 {
			if err := db.Model(&models.Course{}).Where("id = ?", c.ID).UpdateColumns(map[string]any{
				"enrollment_count": wantEnroll,
				"review_count":     rating.Count,
				"average_rating":   wantAvg,
			}).Error; err != nil {
				return repaired, fmt.Errorf("repair course %s: %w", c.ID, err)
			}
			c.EnrollmentCount, c.ReviewCount, c.AverageRating = wantEnroll, rating.Count, wantAvg
			drifted = true
		}

		n, err := progress.SyncProgress(ctx, c.ID)
		if err != nil {
			return repaired, fmt.Errorf("repair progress of course %s: %w", c.ID, err)
		}
		if drifted || n > 0 {
			repaired++
		}
	}

	r.reindex(ctx, courses)
	return repaired, nil
}

// reindex pushes the current counters of published courses to the search
// index. Failures are logged per course.
func (r *Reconciler) reindex(ctx context.Context, courses []models.Course) {
	if r.Search == nil {
		return
	}
	for _, c := range courses {
		if !c.IsPublished {
			continue
		}
		if err := r.Search.Index(ctx, c); err != nil {
			r.logger().Warn("search_reindex_failed", "course_id", c.ID.String(), "error", err)
		}
	}
}

// Schedule starts a cron scheduler running RunOnce on spec. The caller stops
// it with Stop.
func (r *Reconciler) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := r.RunOnce(context.Background())
		if err != nil {
			r.logger().Error("stats_reconcile_failed", "error", err)
			return
		}
		r.logger().Info("stats_reconciled", "repaired", n)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
