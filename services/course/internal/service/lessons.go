package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/services/course/internal/models"
	"github.com/Skotchmaster/lms/services/course/internal/repo"
)

var (
	errSignInForLessons = apperr.Unauthenticated("authentication required")
	errLessonsForbidden = apperr.Forbidden("enroll in the course to access its lessons")
)

type CreateLessonRequest struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	VideoURL      string `json:"video_url"`
	Position      int    `json:"position"`
	DurationMin   int    `json:"duration_min"`
	IsFreePreview bool   `json:"is_free_preview"`
}

type UpdateLessonRequest struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	VideoURL      *string `json:"video_url"`
	DurationMin   *int    `json:"duration_min"`
	IsFreePreview *bool   `json:"is_free_preview"`
}

type ReorderLessonsRequest struct {
	LessonIDs []uuid.UUID `json:"lesson_ids"`
}

// LessonView is a lesson as shown to a particular caller. Locked lessons carry
// metadata only.
type LessonView struct {
	models.Lesson
	Locked bool `json:"locked"`
}

func lockedView(l models.Lesson) LessonView {
	l.Content = ""
	l.VideoURL = ""
	return LessonView{Lesson: l, Locked: true}
}

// lessonAccess decides what p may see of a course's lessons. full means lesson
// content is readable; listing is allowed whenever the error is nil.
func (s *CourseService) lessonAccess(ctx context.Context, p *authz.Principal, c *models.Course) (full bool, err error) {
	if isOwner(p, c) {
		return true, nil
	}
	enrolled := false
	if p != nil {
		enrolled, err = s.Repo.IsEnrolled(ctx, p.ID, c.ID)
		if err != nil {
			return false, apperr.Upstream(err)
		}
	}
	switch {
	case enrolled:
		return true, nil
	case c.IsPublished:
		return false, nil
	case p == nil:
		return false, errSignInForLessons
	default:
		return false, errLessonsForbidden
	}
}

func (s *CourseService) ListLessons(ctx context.Context, p *authz.Principal, courseID uuid.UUID) ([]LessonView, error) {
	c, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	full, err := s.lessonAccess(ctx, p, c)
	if err != nil {
		return nil, err
	}

	lessons, err := s.Repo.LessonsByCourse(ctx, courseID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	out := make([]LessonView, len(lessons))
	for i, l := range lessons {
		if full || l.IsFreePreview {
			out[i] = LessonView{Lesson: l}
		} else {
			out[i] = lockedView(l)
		}
	}
	return out, nil
}

func (s *CourseService) GetLesson(ctx context.Context, p *authz.Principal, courseID, lessonID uuid.UUID) (*LessonView, error) {
	c, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	full, err := s.lessonAccess(ctx, p, c)
	if err != nil {
		return nil, err
	}

	l, err := s.Repo.LessonByID(ctx, courseID, lessonID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errLessonNotFound
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}

	if !full && !l.IsFreePreview {
		if p == nil {
			return nil, errSignInForLessons
		}
		return nil, errLessonsForbidden
	}
	return &LessonView{Lesson: *l}, nil
}

func validateLesson(title, videoURL string, duration int) error {
	switch {
	case title == "":
		return apperr.Validation("title is required")
	case len(title) > maxTitleLen:
		return apperr.Validation("title is too long")
	case duration < 0:
		return apperr.Validation("duration cannot be negative")
	case videoURL != "" && !strings.HasPrefix(videoURL, "https://") && !strings.HasPrefix(videoURL, "http://"):
		return apperr.Validation("video_url must be an http(s) URL")
	}
	return nil
}

func (s *CourseService) CreateLesson(ctx context.Context, p authz.Principal, courseID uuid.UUID, req CreateLessonRequest) (*models.Lesson, error) {
	if _, err := s.ownedCourse(ctx, p, courseID); err != nil {
		return nil, err
	}
	l := &models.Lesson{
		CourseID:      courseID,
		Title:         strings.TrimSpace(req.Title),
		Content:       req.Content,
		VideoURL:      strings.TrimSpace(req.VideoURL),
		Position:      req.Position,
		DurationMin:   req.DurationMin,
		IsFreePreview: req.IsFreePreview,
	}
	if err := validateLesson(l.Title, l.VideoURL, l.DurationMin); err != nil {
		return nil, err
	}
	if err := s.Repo.CreateLesson(ctx, l); err != nil {
		return nil, apperr.Upstream(err)
	}
	return l, nil
}

func (s *CourseService) UpdateLesson(ctx context.Context, p authz.Principal, courseID, lessonID uuid.UUID, req UpdateLessonRequest) (*models.Lesson, error) {
	if _, err := s.ownedCourse(ctx, p, courseID); err != nil {
		return nil, err
	}
	current, err := s.Repo.LessonByID(ctx, courseID, lessonID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errLessonNotFound
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}

	patch := repo.LessonPatch{Content: req.Content, DurationMin: req.DurationMin, IsFreePreview: req.IsFreePreview}
	title, videoURL, duration := current.Title, current.VideoURL, current.DurationMin
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
		patch.Title = &title
	}
	if req.VideoURL != nil {
		videoURL = strings.TrimSpace(*req.VideoURL)
		patch.VideoURL = &videoURL
	}
	if req.DurationMin != nil {
		duration = *req.DurationMin
	}
	if err := validateLesson(title, videoURL, duration); err != nil {
		return nil, err
	}

	l, err := s.Repo.UpdateLesson(ctx, courseID, lessonID, patch)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errLessonNotFound
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return l, nil
}

func (s *CourseService) DeleteLesson(ctx context.Context, p authz.Principal, courseID, lessonID uuid.UUID) error {
	if _, err := s.ownedCourse(ctx, p, courseID); err != nil {
		return err
	}
	err := s.Repo.DeleteLesson(ctx, courseID, lessonID)
	if errors.Is(err, repo.ErrNotFound) {
		return errLessonNotFound
	}
	if err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

func (s *CourseService) ReorderLessons(ctx context.Context, p authz.Principal, courseID uuid.UUID, req ReorderLessonsRequest) ([]models.Lesson, error) {
	if _, err := s.ownedCourse(ctx, p, courseID); err != nil {
		return nil, err
	}
	lessons, err := s.Repo.ReorderLessons(ctx, courseID, req.LessonIDs)
	if errors.Is(err, repo.ErrLessonSetMismatch) {
		return nil, apperr.Validation("lesson_ids must list every lesson of the course exactly once")
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return lessons, nil
}
