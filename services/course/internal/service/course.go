package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/logging"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/services/course/internal/models"
	"github.com/Skotchmaster/lms/services/course/internal/repo"
	"github.com/Skotchmaster/lms/services/course/internal/search"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 10000
)

var (
	errCourseNotFound = apperr.NotFound("course not found")
	errLessonNotFound = apperr.NotFound("lesson not found")
	errNotOwner       = apperr.Forbidden("only the course instructor or an admin can do this")
	errDraftSignIn    = apperr.Unauthenticated("authentication required")
	errDraftForbidden = apperr.Forbidden("course is not published")
)

// Counters keeps the denormalized course statistics current. Failures are
// logged and never fail the request; the reconciler repairs drift.
type Counters interface {
	IncEnrollment(ctx context.Context, courseID uuid.UUID, delta int) error
	RecomputeRating(ctx context.Context, courseID uuid.UUID) error
}

type CourseService struct {
	Repo     *repo.GormRepo
	Counters Counters
	Search   search.Index
	Events   events.Publisher
}

type CreateCourseRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
}

type UpdateCourseRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
}

// canSee reports whether c shows up in p's listings. Drafts are listed to
// their instructor and to admins only.
func canSee(p *authz.Principal, c *models.Course) bool {
	if c.IsPublished {
		return true
	}
	return isOwner(p, c)
}

func isOwner(p *authz.Principal, c *models.Course) bool {
	return p != nil && (p.IsAdmin() || p.ID == c.InstructorID)
}

func (s *CourseService) course(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	c, err := s.Repo.CourseByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errCourseNotFound
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return c, nil
}

// visibleCourse loads a course for reading. Only absent ids are 404. A draft
// is readable by its owner, admins and students already enrolled in it;
// anyone else gets 401 or 403.
func (s *CourseService) visibleCourse(ctx context.Context, p *authz.Principal, id uuid.UUID) (*models.Course, error) {
	c, err := s.course(ctx, id)
	if err != nil {
		return nil, err
	}
	if canSee(p, c) {
		return c, nil
	}
	if p == nil {
		return nil, errDraftSignIn
	}
	enrolled, err := s.Repo.IsEnrolled(ctx, p.ID, c.ID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	if !enrolled {
		return nil, errDraftForbidden
	}
	return c, nil
}

// ownedCourse loads a course for mutation by its instructor or an admin.
func (s *CourseService) ownedCourse(ctx context.Context, p authz.Principal, id uuid.UUID) (*models.Course, error) {
	c, err := s.course(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireOwner(p, c.InstructorID); err != nil {
		return nil, errNotOwner
	}
	return c, nil
}

func (s *CourseService) ListCourses(ctx context.Context, page pagination.Page, category string) ([]models.Course, int64, error) {
	items, total, err := s.Repo.ListCourses(ctx, repo.CourseFilter{
		PublishedOnly: true,
		Category:      strings.TrimSpace(category),
	}, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, apperr.Upstream(err)
	}
	return items, total, nil
}

// InstructorCourses lists the caller's own courses, drafts included. Admins see
// every course.
func (s *CourseService) InstructorCourses(ctx context.Context, p authz.Principal, page pagination.Page) ([]models.Course, int64, error) {
	f := repo.CourseFilter{}
	if !p.IsAdmin() {
		f.InstructorID = &p.ID
	}
	items, total, err := s.Repo.ListCourses(ctx, f, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, apperr.Upstream(err)
	}
	return items, total, nil
}

// SearchCourses queries the search index and falls back to the database when
// the index is unavailable.
func (s *CourseService) SearchCourses(ctx context.Context, q string, page pagination.Page) (search.Result, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return search.Result{Items: []models.Course{}}, nil
	}

	if s.Search != nil {
		res, err := s.Search.Search(ctx, q, page.Offset, page.Limit)
		if err == nil {
			return res, nil
		}
		logging.FromContext(ctx).Warn("search_index_failed", "fallback", "database", "error", err)
	}

	items, total, err := s.Repo.SearchCourses(ctx, q, page.Offset, page.Limit)
	if err != nil {
		return search.Result{}, apperr.Upstream(err)
	}
	return search.Result{Total: total, Items: items}, nil
}

func (s *CourseService) GetCourse(ctx context.Context, p *authz.Principal, id uuid.UUID) (*models.Course, error) {
	return s.visibleCourse(ctx, p, id)
}

func (s *CourseService) CreateCourse(ctx context.Context, p authz.Principal, req CreateCourseRequest) (*models.Course, error) {
	c := &models.Course{
		InstructorID: p.ID,
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Category:     strings.TrimSpace(req.Category),
		Price:        req.Price,
	}
	if err := validateCourse(c.Title, c.Description, c.Price); err != nil {
		return nil, err
	}
	if err := s.Repo.CreateCourse(ctx, c); err != nil {
		return nil, apperr.Upstream(err)
	}
	return c, nil
}

func validateCourse(title, description string, price float64) error {
	switch {
	case title == "":
		return apperr.Validation("title is required")
	case len(title) > maxTitleLen:
		return apperr.Validation("title is too long")
	case len(description) > maxDescriptionLen:
		return apperr.Validation("description is too long")
	case price < 0:
		return apperr.Validation("price cannot be negative")
	}
	return nil
}

func (s *CourseService) UpdateCourse(ctx context.Context, p authz.Principal, id uuid.UUID, req UpdateCourseRequest) (*models.Course, error) {
	current, err := s.ownedCourse(ctx, p, id)
	if err != nil {
		return nil, err
	}

	patch := repo.CoursePatch{Category: req.Category, Price: req.Price}
	title, description, price := current.Title, current.Description, current.Price
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
		patch.Title = &title
	}
	if req.Description != nil {
		description = strings.TrimSpace(*req.Description)
		patch.Description = &description
	}
	if req.Price != nil {
		price = *req.Price
	}
	if err := validateCourse(title, description, price); err != nil {
		return nil, err
	}

	c, err := s.Repo.UpdateCourse(ctx, id, patch)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	s.reindex(ctx, c)
	return c, nil
}

func (s *CourseService) DeleteCourse(ctx context.Context, p authz.Principal, id uuid.UUID) error {
	if _, err := s.ownedCourse(ctx, p, id); err != nil {
		return err
	}
	if err := s.Repo.DeleteCourse(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errCourseNotFound
		}
		return apperr.Upstream(err)
	}
	if s.Search != nil {
		if err := s.Search.Remove(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("search_remove_failed", "course_id", id.String(), "error", err)
		}
	}
	return nil
}

// Publish makes the course public. A course needs at least one lesson first.
func (s *CourseService) Publish(ctx context.Context, p authz.Principal, id uuid.UUID) (*models.Course, error) {
	current, err := s.ownedCourse(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if current.IsPublished {
		return current, nil
	}

	n, err := s.Repo.CountLessons(ctx, id)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	if n == 0 {
		return nil, apperr.Validation("a course needs at least one lesson before it can be published")
	}

	c, err := s.Repo.SetPublished(ctx, id, true)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	s.reindex(ctx, c)
	s.publish(ctx, events.New(events.CoursePublished, c.ID.String(), map[string]string{
		"course_id":     c.ID.String(),
		"instructor_id": c.InstructorID.String(),
		"title":         c.Title,
	}))
	return c, nil
}

func (s *CourseService) Unpublish(ctx context.Context, p authz.Principal, id uuid.UUID) (*models.Course, error) {
	current, err := s.ownedCourse(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !current.IsPublished {
		return current, nil
	}
	c, err := s.Repo.SetPublished(ctx, id, false)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	s.reindex(ctx, c)
	return c, nil
}

func (s *CourseService) reindex(ctx context.Context, c *models.Course) {
	if s.Search == nil {
		return
	}
	if err := s.Search.Index(ctx, *c); err != nil {
		logging.FromContext(ctx).Warn("search_index_update_failed", "course_id", c.ID.String(), "error", err)
	}
}

// refreshIndex reloads the course so the index carries its current counters.
func (s *CourseService) refreshIndex(ctx context.Context, id uuid.UUID) {
	if s.Search == nil {
		return
	}
	c, err := s.Repo.CourseByID(ctx, id)
	if err != nil {
		logging.FromContext(ctx).Warn("search_index_update_failed", "course_id", id.String(), "error", err)
		return
	}
	s.reindex(ctx, c)
}

func (s *CourseService) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", ev.Type, "error", err)
	}
}

func (s *CourseService) counter(ctx context.Context, op string, err error) {
	if err != nil {
		logging.FromContext(ctx).Warn("stats_update_failed", "op", op, "error", err)
	}
}
