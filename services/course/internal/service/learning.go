package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/services/course/internal/models"
	"github.com/Skotchmaster/lms/services/course/internal/repo"
)

const maxCommentLen = 2000

var (
	errEnrollmentRequired = apperr.Forbidden("enrollment required")
	errEnrollmentNotFound = apperr.NotFound("enrollment not found")
)

type EnrollmentView struct {
	models.Enrollment
	Course *models.Course `json:"course,omitempty"`
}

type ProgressView struct {
	CourseID         uuid.UUID   `json:"course_id"`
	Progress         int         `json:"progress"`
	Status           string      `json:"status"`
	CompletedLessons []uuid.UUID `json:"completed_lessons"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *CourseService) Enroll(ctx context.Context, p authz.Principal, courseID uuid.UUID) (*models.Enrollment, error) {
	c, err := s.visibleCourse(ctx, &p, courseID)
	if err != nil {
		return nil, err
	}
	if !c.IsPublished {
		return nil, apperr.Validation("course is not published")
	}

	e := &models.Enrollment{UserID: p.ID, CourseID: courseID}
	if err := s.Repo.CreateEnrollment(ctx, e); err != nil {
		if errors.Is(err, repo.ErrAlreadyEnrolled) {
			return nil, apperr.Conflict("already enrolled in this course")
		}
		return nil, apperr.Upstream(err)
	}

	if s.Counters != nil {
		s.counter(ctx, "enrollment_inc", s.Counters.IncEnrollment(ctx, courseID, 1))
	}
	s.refreshIndex(ctx, courseID)
	s.publish(ctx, events.New(events.EnrollmentCreated, courseID.String(), map[string]string{
		"user_id":   p.ID.String(),
		"course_id": courseID.String(),
	}))
	return e, nil
}

func (s *CourseService) Unenroll(ctx context.Context, p authz.Principal, courseID uuid.UUID) error {
	if _, err := s.course(ctx, courseID); err != nil {
		return err
	}
	if err := s.Repo.DeleteEnrollment(ctx, p.ID, courseID); err != nil {
		if errors.Is(err, repo.ErrNotEnrolled) {
			return errEnrollmentNotFound
		}
		return apperr.Upstream(err)
	}

	if s.Counters != nil {
		s.counter(ctx, "enrollment_dec", s.Counters.IncEnrollment(ctx, courseID, -1))
	}
	s.refreshIndex(ctx, courseID)
	s.publish(ctx, events.New(events.EnrollmentDeleted, courseID.String(), map[string]string{
		"user_id":   p.ID.String(),
		"course_id": courseID.String(),
	}))
	return nil
}

func (s *CourseService) MyEnrollments(ctx context.Context, p authz.Principal) ([]EnrollmentView, error) {
	enrollments, err := s.Repo.EnrollmentsByUser(ctx, p.ID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	ids := make([]uuid.UUID, len(enrollments))
	for i, e := range enrollments {
		ids[i] = e.CourseID
	}
	courses, err := s.Repo.CoursesByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Upstream(err)
	}

	out := make([]EnrollmentView, len(enrollments))
	for i, e := range enrollments {
		out[i] = EnrollmentView{Enrollment: e}
		if c, ok := courses[e.CourseID]; ok {
			out[i].Course = &c
		}
	}
	return out, nil
}

// CompleteLesson marks the lesson done for the caller and returns the updated
// progress. Completing the same lesson twice is a no-op.
func (s *CourseService) CompleteLesson(ctx context.Context, p authz.Principal, courseID, lessonID uuid.UUID) (*ProgressView, error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}

	e, created, err := s.Repo.CompleteLesson(ctx, p.ID, courseID, lessonID)
	switch {
	case errors.Is(err, repo.ErrNotEnrolled):
		return nil, errEnrollmentRequired
	case errors.Is(err, repo.ErrNotFound):
		return nil, errLessonNotFound
	case err != nil:
		return nil, apperr.Upstream(err)
	}

	if created {
		s.publish(ctx, events.New(events.LessonCompleted, courseID.String(), map[string]string{
			"user_id":   p.ID.String(),
			"course_id": courseID.String(),
			"lesson_id": lessonID.String(),
			"progress":  strconv.Itoa(e.Progress),
		}))
	}
	return s.progressView(ctx, p.ID, e)
}

func (s *CourseService) Progress(ctx context.Context, p authz.Principal, courseID uuid.UUID) (*ProgressView, error) {
	e, err := s.Repo.Enrollment(ctx, p.ID, courseID)
	if errors.Is(err, repo.ErrNotEnrolled) {
		return nil, errEnrollmentNotFound
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return s.progressView(ctx, p.ID, e)
}

func (s *CourseService) progressView(ctx context.Context, userID uuid.UUID, e *models.Enrollment) (*ProgressView, error) {
	done, err := s.Repo.CompletedLessonIDs(ctx, userID, e.CourseID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return &ProgressView{
		CourseID:         e.CourseID,
		Progress:         e.Progress,
		Status:           e.Status,
		CompletedLessons: done,
	}, nil
}

func (s *CourseService) AddToWishlist(ctx context.Context, p authz.Principal, courseID uuid.UUID) error {
	if _, err := s.visibleCourse(ctx, &p, courseID); err != nil {
		return err
	}
	if err := s.Repo.AddToWishlist(ctx, p.ID, courseID); err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

func (s *CourseService) RemoveFromWishlist(ctx context.Context, p authz.Principal, courseID uuid.UUID) error {
	err := s.Repo.RemoveFromWishlist(ctx, p.ID, courseID)
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("course is not in the wishlist")
	}
	if err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

// Wishlist returns the wishlisted courses the caller can still see.
func (s *CourseService) Wishlist(ctx context.Context, p authz.Principal) ([]models.Course, error) {
	ids, err := s.Repo.WishlistCourseIDs(ctx, p.ID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	courses, err := s.Repo.CoursesByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	out := make([]models.Course, 0, len(ids))
	for _, id := range ids {
		if c, ok := courses[id]; ok && canSee(&p, &c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// SaveReview creates or replaces the caller's review. Only enrolled users may
// review a course.
func (s *CourseService) SaveReview(ctx context.Context, p authz.Principal, courseID uuid.UUID, req ReviewRequest) (*models.Review, bool, error) {
	comment := strings.TrimSpace(req.Comment)
	if req.Rating < 1 || req.Rating > 5 {
		return nil, false, apperr.Validation("rating must be between 1 and 5")
	}
	if len(comment) > maxCommentLen {
		return nil, false, apperr.Validation("comment is too long")
	}

	if _, err := s.visibleCourse(ctx, &p, courseID); err != nil {
		return nil, false, err
	}
	enrolled, err := s.Repo.IsEnrolled(ctx, p.ID, courseID)
	if err != nil {
		return nil, false, apperr.Upstream(err)
	}
	if !enrolled {
		return nil, false, apperr.Forbidden("only enrolled students can review a course")
	}

	rev := &models.Review{UserID: p.ID, CourseID: courseID, Rating: req.Rating, Comment: comment}
	created, err := s.Repo.SaveReview(ctx, rev)
	if err != nil {
		return nil, false, apperr.Upstream(err)
	}
	if s.Counters != nil {
		s.counter(ctx, "rating_recompute", s.Counters.RecomputeRating(ctx, courseID))
	}
	s.refreshIndex(ctx, courseID)
	return rev, created, nil
}

func (s *CourseService) ListReviews(ctx context.Context, p *authz.Principal, courseID uuid.UUID, page pagination.Page) ([]models.Review, int64, error) {
	if _, err := s.visibleCourse(ctx, p, courseID); err != nil {
		return nil, 0, err
	}
	items, total, err := s.Repo.ReviewsByCourse(ctx, courseID, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, apperr.Upstream(err)
	}
	return items, total, nil
}
