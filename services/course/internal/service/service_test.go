package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/db/dbtest"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/services/course/internal/models"
	"github.com/Skotchmaster/lms/services/course/internal/repo"
	"github.com/Skotchmaster/lms/services/course/internal/search"
	"github.com/Skotchmaster/lms/services/course/internal/stats"
)

type fixture struct {
	svc        *CourseService
	rec        *events.Recorder
	instructor authz.Principal
	other      authz.Principal
	student    authz.Principal
	admin      authz.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t, models.All()...)
	r := &repo.GormRepo{DB: db}
	rec := &events.Recorder{}
	return &fixture{
		svc: &CourseService{
			Repo:     r,
			Counters: &stats.Counters{DB: db},
			Search:   search.DB{Repo: r},
			Events:   rec,
		},
		rec:        rec,
		instructor: authz.Principal{ID: uuid.New(), Email: "teach@example.com", Role: authz.RoleInstructor},
		other:      authz.Principal{ID: uuid.New(), Email: "other@example.com", Role: authz.RoleInstructor},
		student:    authz.Principal{ID: uuid.New(), Email: "learn@example.com", Role: authz.RoleStudent},
		admin:      authz.Principal{ID: uuid.New(), Email: "root@example.com", Role: authz.RoleAdmin},
	}
}

// publishedCourse creates a course owned by f.instructor with n lessons, the
// first of which is a free preview, and publishes it.
func (f *fixture) publishedCourse(t *testing.T, n int) (*models.Course, []*models.Lesson) {
	t.Helper()
	c, lessons := f.draftCourse(t, n)
	c, err := f.svc.Publish(context.Background(), f.instructor, c.ID)
	require.NoError(t, err)
	return c, lessons
}

func (f *fixture) draftCourse(t *testing.T, n int) (*models.Course, []*models.Lesson) {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.CreateCourse(ctx, f.instructor, CreateCourseRequest{Title: "Concurrency in Go", Description: "goroutines", Price: 10})
	require.NoError(t, err)

	lessons := make([]*models.Lesson, 0, n)
	for i := 0; i < n; i++ {
		l, err := f.svc.CreateLesson(ctx, f.instructor, c.ID, CreateLessonRequest{
			Title:         "Lesson",
			Content:       "secret content",
			VideoURL:      "https://video.example.com/1",
			IsFreePreview: i == 0,
		})
		require.NoError(t, err)
		lessons = append(lessons, l)
	}
	return c, lessons
}

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	require.Error(t, err)
	return apperr.KindOf(err)
}

func TestCreateCourse_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCourse(ctx, f.instructor, CreateCourseRequest{Title: "  "})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = f.svc.CreateCourse(ctx, f.instructor, CreateCourseRequest{Title: "Go", Price: -1})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	c, err := f.svc.CreateCourse(ctx, f.instructor, CreateCourseRequest{Title: " Go "})
	require.NoError(t, err)
	assert.Equal(t, "Go", c.Title)
	assert.Equal(t, f.instructor.ID, c.InstructorID)
	assert.False(t, c.IsPublished)
}

func TestDraftVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.draftCourse(t, 1)

	_, err := f.svc.GetCourse(ctx, nil, c.ID)
	assert.Equal(t, apperr.KindUnauthenticated, kindOf(t, err))
	_, err = f.svc.GetCourse(ctx, &f.student, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.GetCourse(ctx, &f.other, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.ListLessons(ctx, &f.student, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err), "course and lessons answer alike")
	_, err = f.svc.GetCourse(ctx, &f.student, uuid.New())
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))

	_, err = f.svc.GetCourse(ctx, &f.instructor, c.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetCourse(ctx, &f.admin, c.ID)
	assert.NoError(t, err)

	items, total, err := f.svc.ListCourses(ctx, pagination.Calculate(1, 10), "")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	mine, total, err := f.svc.InstructorCourses(ctx, f.instructor, pagination.Calculate(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, c.ID, mine[0].ID)

	_, total, err = f.svc.InstructorCourses(ctx, f.other, pagination.Calculate(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUnpublishedCourse_VisibleToEnrolledStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t, 1)
	_, err := f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
	_, err = f.svc.Unpublish(ctx, f.instructor, c.ID)
	require.NoError(t, err)

	got, err := f.svc.GetCourse(ctx, &f.student, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPublished)

	outsider := authz.Principal{ID: uuid.New(), Role: authz.RoleStudent}
	_, err = f.svc.GetCourse(ctx, &outsider, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
}

func TestMutations_OwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, lessons := f.publishedCourse(t, 2)
	title := "Renamed"

	_, err := f.svc.UpdateCourse(ctx, f.other, c.ID, UpdateCourseRequest{Title: &title})
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.CreateLesson(ctx, f.other, c.ID, CreateLessonRequest{Title: "x"})
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	err = f.svc.DeleteLesson(ctx, f.other, c.ID, lessons[0].ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.Unpublish(ctx, f.other, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	err = f.svc.DeleteCourse(ctx, f.other, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))

	got, err := f.svc.UpdateCourse(ctx, f.admin, c.ID, UpdateCourseRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	_, err = f.svc.UpdateCourse(ctx, f.instructor, uuid.New(), UpdateCourseRequest{Title: &title})
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))

	require.NoError(t, f.svc.DeleteCourse(ctx, f.instructor, c.ID))
	_, err = f.svc.GetCourse(ctx, &f.admin, c.ID)
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))
}

func TestMutations_OwnerOrAdmin_Draft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, lessons := f.draftCourse(t, 1)
	title := "Renamed"

	_, err := f.svc.UpdateCourse(ctx, f.other, c.ID, UpdateCourseRequest{Title: &title})
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	err = f.svc.DeleteCourse(ctx, f.other, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.Publish(ctx, f.other, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.CreateLesson(ctx, f.other, c.ID, CreateLessonRequest{Title: "x"})
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	err = f.svc.DeleteLesson(ctx, f.other, c.ID, lessons[0].ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))

	got, err := f.svc.GetCourse(ctx, &f.instructor, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Concurrency in Go", got.Title, "denied calls leave the course untouched")
	assert.False(t, got.IsPublished)

	_, err = f.svc.UpdateCourse(ctx, f.instructor, c.ID, UpdateCourseRequest{Title: &title})
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, f.admin, c.ID)
	require.NoError(t, err)
}

func TestPublish_RequiresLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.draftCourse(t, 0)

	_, err := f.svc.Publish(ctx, f.instructor, c.ID)
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = f.svc.CreateLesson(ctx, f.instructor, c.ID, CreateLessonRequest{Title: "Intro"})
	require.NoError(t, err)
	got, err := f.svc.Publish(ctx, f.instructor, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPublished)
	assert.Equal(t, []string{events.CoursePublished}, f.rec.Types())

	_, err = f.svc.Publish(ctx, f.instructor, c.ID)
	require.NoError(t, err)
	assert.Len(t, f.rec.Types(), 1, "publishing twice emits once")
}

func TestLessonAccess_PublishedCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, lessons := f.publishedCourse(t, 2)
	preview, locked := lessons[0], lessons[1]

	list, err := f.svc.ListLessons(ctx, nil, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].Locked)
	assert.Equal(t, "secret content", list[0].Content)
	assert.True(t, list[1].Locked)
	assert.Empty(t, list[1].Content)
	assert.Empty(t, list[1].VideoURL)

	_, err = f.svc.GetLesson(ctx, nil, c.ID, preview.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetLesson(ctx, nil, c.ID, locked.ID)
	assert.Equal(t, apperr.KindUnauthenticated, kindOf(t, err))
	_, err = f.svc.GetLesson(ctx, &f.student, c.ID, locked.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))

	_, err = f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
	got, err := f.svc.GetLesson(ctx, &f.student, c.ID, locked.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret content", got.Content)

	_, err = f.svc.GetLesson(ctx, &f.instructor, c.ID, locked.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetLesson(ctx, &f.admin, c.ID, locked.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetLesson(ctx, &f.admin, c.ID, uuid.New())
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))
}

func TestLessonAccess_UnpublishedCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, lessons := f.publishedCourse(t, 1)
	_, err := f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
	_, err = f.svc.Unpublish(ctx, f.instructor, c.ID)
	require.NoError(t, err)

	_, err = f.svc.ListLessons(ctx, nil, c.ID)
	assert.Equal(t, apperr.KindUnauthenticated, kindOf(t, err))
	_, err = f.svc.ListLessons(ctx, &f.other, c.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.GetLesson(ctx, &f.other, c.ID, lessons[0].ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err), "free preview does not open a draft")

	list, err := f.svc.ListLessons(ctx, &f.student, c.ID)
	require.NoError(t, err, "enrolled students keep access")
	assert.False(t, list[0].Locked)

	_, err = f.svc.ListLessons(ctx, &f.instructor, c.ID)
	assert.NoError(t, err)
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t, 1)
	draft, _ := f.draftCourse(t, 1)

	e, err := f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, e.Status)

	_, err = f.svc.Enroll(ctx, f.student, c.ID)
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))

	_, err = f.svc.Enroll(ctx, f.student, draft.ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))
	_, err = f.svc.Enroll(ctx, f.admin, draft.ID)
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	got, err := f.svc.GetCourse(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EnrollmentCount)

	mine, err := f.svc.MyEnrollments(ctx, f.student)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Course)
	assert.Equal(t, c.ID, mine[0].Course.ID)

	require.NoError(t, f.svc.Unenroll(ctx, f.student, c.ID))
	assert.Equal(t, apperr.KindNotFound, kindOf(t, f.svc.Unenroll(ctx, f.student, c.ID)))

	got, err = f.svc.GetCourse(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.EnrollmentCount)

	assert.Contains(t, f.rec.Types(), events.EnrollmentCreated)
	assert.Contains(t, f.rec.Types(), events.EnrollmentDeleted)
}

func TestCompleteLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, lessons := f.publishedCourse(t, 2)

	_, err := f.svc.CompleteLesson(ctx, f.student, c.ID, lessons[0].ID)
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))

	_, err = f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)

	p, err := f.svc.CompleteLesson(ctx, f.student, c.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 50, p.Progress)
	assert.Equal(t, []uuid.UUID{lessons[0].ID}, p.CompletedLessons)

	_, err = f.svc.CompleteLesson(ctx, f.student, c.ID, lessons[0].ID)
	require.NoError(t, err)

	p, err = f.svc.CompleteLesson(ctx, f.student, c.ID, lessons[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Progress)
	assert.Equal(t, models.EnrollmentCompleted, p.Status)

	_, err = f.svc.CompleteLesson(ctx, f.student, c.ID, uuid.New())
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))
	_, err = f.svc.CompleteLesson(ctx, f.student, uuid.New(), lessons[0].ID)
	assert.Equal(t, apperr.KindNotFound, kindOf(t, err))

	completed := 0
	for _, typ := range f.rec.Types() {
		if typ == events.LessonCompleted {
			completed++
		}
	}
	assert.Equal(t, 2, completed, "repeat completion is not re-announced")

	got, err := f.svc.Progress(ctx, f.student, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}

func TestWishlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t, 1)
	draft, _ := f.draftCourse(t, 1)

	require.NoError(t, f.svc.AddToWishlist(ctx, f.student, c.ID))
	require.NoError(t, f.svc.AddToWishlist(ctx, f.student, c.ID))
	assert.Equal(t, apperr.KindForbidden, kindOf(t, f.svc.AddToWishlist(ctx, f.student, draft.ID)))

	list, err := f.svc.Wishlist(ctx, f.student)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	_, err = f.svc.Unpublish(ctx, f.instructor, c.ID)
	require.NoError(t, err)
	list, err = f.svc.Wishlist(ctx, f.student)
	require.NoError(t, err)
	assert.Empty(t, list, "unpublished courses drop out of the wishlist view")

	require.NoError(t, f.svc.RemoveFromWishlist(ctx, f.student, c.ID))
	assert.Equal(t, apperr.KindNotFound, kindOf(t, f.svc.RemoveFromWishlist(ctx, f.student, c.ID)))
}

func TestReviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t, 1)

	_, _, err := f.svc.SaveReview(ctx, f.student, c.ID, ReviewRequest{Rating: 5})
	assert.Equal(t, apperr.KindForbidden, kindOf(t, err))

	_, err = f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)

	_, _, err = f.svc.SaveReview(ctx, f.student, c.ID, ReviewRequest{Rating: 6})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, created, err := f.svc.SaveReview(ctx, f.student, c.ID, ReviewRequest{Rating: 2, Comment: "meh"})
	require.NoError(t, err)
	assert.True(t, created)
	rev, created, err := f.svc.SaveReview(ctx, f.student, c.ID, ReviewRequest{Rating: 4, Comment: "better"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 4, rev.Rating)

	items, total, err := f.svc.ListReviews(ctx, nil, c.ID, pagination.Calculate(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "better", items[0].Comment)

	got, err := f.svc.GetCourse(ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReviewCount)
	assert.InDelta(t, 4.0, got.AverageRating, 0.001)
}

type brokenIndex struct{ search.DB }

func (brokenIndex) Search(context.Context, string, int, int) (search.Result, error) {
	return search.Result{}, errors.New("cluster unavailable")
}

func TestSearch_FallsBackToDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.publishedCourse(t, 1)
	f.svc.Search = brokenIndex{}

	res, err := f.svc.SearchCourses(ctx, "concurrency", pagination.Calculate(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)

	res, err = f.svc.SearchCourses(ctx, "   ", pagination.Calculate(1, 10))
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Items)
}

type recordingIndex struct {
	search.DB
	indexed []models.Course
}

func (r *recordingIndex) Index(_ context.Context, c models.Course) error {
	r.indexed = append(r.indexed, c)
	return nil
}

func (r *recordingIndex) last() models.Course { return r.indexed[len(r.indexed)-1] }

func TestCounterChangesReachSearchIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t, 1)
	idx := &recordingIndex{}
	f.svc.Search = idx

	_, err := f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
	require.NotEmpty(t, idx.indexed)
	assert.Equal(t, 1, idx.last().EnrollmentCount)

	_, _, err = f.svc.SaveReview(ctx, f.student, c.ID, ReviewRequest{Rating: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.last().ReviewCount)
	assert.InDelta(t, 3.0, idx.last().AverageRating, 0.001)

	require.NoError(t, f.svc.Unenroll(ctx, f.student, c.ID))
	assert.Zero(t, idx.last().EnrollmentCount)
}

type failingCounters struct{}

func (failingCounters) IncEnrollment(context.Context, uuid.UUID, int) error {
	return errors.New("counter store down")
}
func (failingCounters) RecomputeRating(context.Context, uuid.UUID) error {
	return errors.New("counter store down")
}

func TestCounterFailureDoesNotFailEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t, 1)
	f.svc.Counters = failingCounters{}

	_, err := f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
}
