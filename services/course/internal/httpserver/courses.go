package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/logging"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/services/course/internal/service"
)

type CourseHTTP struct {
	Svc *service.CourseService
}

func (h *CourseHTTP) ListCourses(c echo.Context) error {
	page := pagination.FromQuery(c)
	items, total, err := h.Svc.ListCourses(c.Request().Context(), page, c.QueryParam("category"))
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"courses": items, "meta": page.Meta(total)})
}

func (h *CourseHTTP) SearchCourses(c echo.Context) error {
	page := pagination.FromQuery(c)
	res, err := h.Svc.SearchCourses(c.Request().Context(), c.QueryParam("q"), page)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"courses": res.Items, "meta": page.Meta(res.Total)})
}

func (h *CourseHTTP) InstructorCourses(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	page := pagination.FromQuery(c)
	items, total, err := h.Svc.InstructorCourses(c.Request().Context(), p, page)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"courses": items, "meta": page.Meta(total)})
}

func (h *CourseHTTP) GetCourse(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	course, err := h.Svc.GetCourse(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"course": course})
}

func (h *CourseHTTP) CreateCourse(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "course_create")

	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req service.CreateCourseRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("course_create_failed", "status", 400, "reason", "invalid body", "error", err)
		return errInvalidBody
	}

	course, err := h.Svc.CreateCourse(ctx, p, req)
	if err != nil {
		l.Warn("course_create_failed", "status", apperr.KindOf(err).Status(), "reason", apperr.PublicMessage(err))
		return err
	}
	l.Info("course_created", "course_id", course.ID.String())
	return apperr.OKMessage(c, http.StatusCreated, "course created", echo.Map{"course": course})
}

func (h *CourseHTTP) UpdateCourse(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.UpdateCourseRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	course, err := h.Svc.UpdateCourse(c.Request().Context(), p, id, req)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"course": course})
}

func (h *CourseHTTP) DeleteCourse(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "course_delete")

	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteCourse(ctx, p, id); err != nil {
		l.Warn("course_delete_failed", "status", apperr.KindOf(err).Status(), "course_id", id.String())
		return err
	}
	l.Info("course_deleted", "course_id", id.String())
	return apperr.OKMessage(c, http.StatusOK, "course deleted", nil)
}

func (h *CourseHTTP) Publish(c echo.Context) error {
	return h.setPublished(c, true)
}

func (h *CourseHTTP) Unpublish(c echo.Context) error {
	return h.setPublished(c, false)
}

func (h *CourseHTTP) setPublished(c echo.Context, published bool) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	update, msg := h.Svc.Unpublish, "course unpublished"
	if published {
		update, msg = h.Svc.Publish, "course published"
	}
	course, err := update(ctx, p, id)
	if err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusOK, msg, echo.Map{"course": course})
}
