package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/apperr"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	"github.com/Skotchmaster/lms/services/course/internal/service"
)

func (h *CourseHTTP) ListLessons(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	lessons, err := h.Svc.ListLessons(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"lessons": lessons})
}

func (h *CourseHTTP) GetLesson(c echo.Context) error {
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}
	lesson, err := h.Svc.GetLesson(c.Request().Context(), viewer(c), courseID, lessonID)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"lesson": lesson})
}

func (h *CourseHTTP) CreateLesson(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.CreateLessonRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	lesson, err := h.Svc.CreateLesson(c.Request().Context(), p, courseID, req)
	if err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusCreated, "lesson created", echo.Map{"lesson": lesson})
}

func (h *CourseHTTP) UpdateLesson(c echo.Context) error {
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
	var req service.UpdateLessonRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	lesson, err := h.Svc.UpdateLesson(c.Request().Context(), p, courseID, lessonID, req)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"lesson": lesson})
}

func (h *CourseHTTP) DeleteLesson(c echo.Context) error {
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
	if err := h.Svc.DeleteLesson(c.Request().Context(), p, courseID, lessonID); err != nil {
		return err
	}
	return apperr.OKMessage(c, http.StatusOK, "lesson deleted", nil)
}

func (h *CourseHTTP) ReorderLessons(c echo.Context) error {
	p, err := authmw.MustPrincipal(c)
	if err != nil {
		return err
	}
	courseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.ReorderLessonsRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	lessons, err := h.Svc.ReorderLessons(c.Request().Context(), p, courseID, req)
	if err != nil {
		return err
	}
	return apperr.OK(c, http.StatusOK, echo.Map{"lessons": lessons})
}
