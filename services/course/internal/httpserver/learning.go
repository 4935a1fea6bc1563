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

func (h *CourseHTTP) Enroll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "course_enroll")

	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	e, err := h.Svc.Enroll(ctx, p, id)
	if err != nil {
		l.Warn("enroll_failed", "status", apperr.KindOf(err).Status(), "reason", apperr.PublicMessage(err), "course_id", id.String())
		return err
	}
	l.Info("enrolled", "course_id", id.String(), "user_id", p.ID.String())
	return apperr.OKMessage(c, http.StatusCreated, "enrolled", echo.Map{"enrollment": e})
}

func (h *CourseHTTP) Unenroll(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.Unenroll(c.Request().Context(), p, id); err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusOK, "unenrolled", nil)
}

func (h *CourseHTTP) MyEnrollments(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	items, err := h.Svc.MyEnrollments(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"enrollments": items})
}

func (h *CourseHTTP) CompleteLesson(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}
	progress, err := h.Svc.CompleteLesson(c.Request().Context(), p, courseID, lessonID)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"progress": progress})
}

func (h *CourseHTTP) Progress(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	progress, err := h.Svc.Progress(c.Request().Context(), p, courseID)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"progress": progress})
}

func (h *CourseHTTP) Wishlist(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	items, err := h.Svc.Wishlist(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"courses": items})
}

func (h *CourseHTTP) AddToWishlist(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.AddToWishlist(c.Request().Context(), p, id); err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusCreated, "added to wishlist", nil)
}

func (h *CourseHTTP) RemoveFromWishlist(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.RemoveFromWishlist(c.Request().Context(), p, id); err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusOK, "removed from wishlist", nil)
}

func (h *CourseHTTP) ListReviews(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	page := pagination.FromQuery(c)
	items, total, err := h.Svc.ListReviews(c.Request().Context(), viewer(c), id, page)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"reviews": items, "meta": page.Meta(total)})
}

func (h *CourseHTTP) SaveReview(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.ReviewRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	review, created, err := h.Svc.SaveReview(c.Request().Context(), p, id, req)
	if err != nil {
		return err
	}
	if created {
		return apperr.OKMessage(c, http.StatusCreated, "review created", echo.Map{"review": review})
	}
	return apperr.OKMessage(c, http.StatusOK, "review updated", echo.Map{"review": review})
}
