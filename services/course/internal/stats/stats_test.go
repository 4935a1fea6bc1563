package stats

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lms/pkg/db/dbtest"
	"github.com/Skotchmaster/lms/services/course/internal/models"
	"github.com/Skotchmaster/lms/services/course/internal/search"
)

func seedCourse(t *testing.T, db *gorm.DB) *models.Course {
	t.Helper()
	c := &models.Course{InstructorID: uuid.New(), Title: "Go", IsPublished: true}
	require.NoError(t, db.Create(c).Error)
	return c
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.Course {
	t.Helper()
	var c models.Course
	require.NoError(t, db.Where("id = ?", id).First(&c).Error)
	return c
}

func TestCounters_IncEnrollmentNeverNegative(t *testing.T) {
	db := dbtest.Open(t, models.All()...)
	c := seedCourse(t, db)
	counters := &Counters{DB: db}
	ctx := context.Background()

	require.NoError(t, counters.IncEnrollment(ctx, c.ID, 1))
	require.NoError(t, counters.IncEnrollment(ctx, c.ID, 1))
	assert.Equal(t, 2, reload(t, db, c.ID).EnrollmentCount)

	require.NoError(t, counters.IncEnrollment(ctx, c.ID, -5))
	assert.Equal(t, 0, reload(t, db, c.ID).EnrollmentCount)
}

func TestCounters_RecomputeRating(t *testing.T) {
	db := dbtest.Open(t, models.All()...)
	c := seedCourse(t, db)
	for _, rating := range []int{5, 4, 4} {
		require.NoError(t, db.Create(&models.Review{UserID: uuid.New(), CourseID: c.ID, Rating: rating}).Error)
	}

	require.NoError(t, (&Counters{DB: db}).RecomputeRating(context.Background(), c.ID))

	got := reload(t, db, c.ID)
	assert.Equal(t, 3, got.ReviewCount)
	assert.InDelta(t, 4.33, got.AverageRating, 0.001)
}

func TestReconciler_RepairsDrift(t *testing.T) {
	db := dbtest.Open(t, models.All()...)
	drifted := seedCourse(t, db)
	clean := seedCourse(t, db)

	require.NoError(t, db.Create(&models.Enrollment{UserID: uuid.New(), CourseID: drifted.ID, Status: models.EnrollmentActive}).Error)
	require.NoError(t, db.Create(&models.Review{UserID: uuid.New(), CourseID: drifted.ID, Rating: 3}).Error)
	require.NoError(t, db.Model(&models.Course{}).Where("id = ?", drifted.ID).
		UpdateColumns(map[string]any{"enrollment_count": 42, "review_count": 0, "average_rating": 0}).Error)

	r := &Reconciler{DB: db}
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := reload(t, db, drifted.ID)
	assert.Equal(t, 1, got.EnrollmentCount)
	assert.Equal(t, 1, got.ReviewCount)
	assert.InDelta(t, 3.0, got.AverageRating, 0.001)
	assert.Equal(t, 0, reload(t, db, clean.ID).EnrollmentCount)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type recordingIndex struct {
	search.DB
	indexed map[uuid.UUID]models.Course
}

func (r *recordingIndex) Index(_ context.Context, c models.Course) error {
	r.indexed[c.ID] = c
	return nil
}

func TestReconciler_RepairsProgressAndReindexes(t *testing.T) {
	db := dbtest.Open(t, models.All()...)
	published := seedCourse(t, db)
	draft := &models.Course{InstructorID: uuid.New(), Title: "Draft"}
	require.NoError(t, db.Create(draft).Error)

	lessons := []*models.Lesson{{CourseID: published.ID, Title: "a"}, {CourseID: published.ID, Title: "b"}}
	for _, l := range lessons {
		require.NoError(t, db.Create(l).Error)
	}
	user := uuid.New()
	require.NoError(t, db.Create(&models.Enrollment{
		UserID: user, CourseID: published.ID, Progress: 100, Status: models.EnrollmentCompleted,
	}).Error)
	require.NoError(t, db.Create(&models.LessonCompletion{UserID: user, LessonID: lessons[0].ID, CourseID: published.ID}).Error)
	require.NoError(t, db.Model(&models.Course{}).Where("id = ?", published.ID).UpdateColumn("enrollment_count", 1).Error)
	require.NoError(t, db.Create(&models.Review{UserID: user, CourseID: published.ID, Rating: 5}).Error)

	idx := &recordingIndex{indexed: map[uuid.UUID]models.Course{}}
	r := &Reconciler{DB: db, Search: idx}
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var e models.Enrollment
	require.NoError(t, db.Where("user_id = ?", user).First(&e).Error)
	assert.Equal(t, 50, e.Progress)
	assert.Equal(t, models.EnrollmentActive, e.Status)

	require.Contains(t, idx.indexed, published.ID)
	assert.NotContains(t, idx.indexed, draft.ID)
	assert.Equal(t, 1, idx.indexed[published.ID].ReviewCount, "the index sees repaired counters")
	assert.InDelta(t, 5.0, idx.indexed[published.ID].AverageRating, 0.001)
}

func TestReconciler_ScheduleRejectsBadSpec(t *testing.T) {
	db := dbtest.Open(t, models.All()...)
	_, err := (&Reconciler{DB: db}).Schedule("not a schedule")
	require.Error(t, err)

	c, err := (&Reconciler{DB: db}).Schedule("@every 1h")
	require.NoError(t, err)
	<-c.Stop().Done()
}
