package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/metrics"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
)

type Deps struct {
	CourseHandler *CourseHTTP
	Authn         *authmw.Authenticator
	Metrics       *metrics.Metrics
	Ready         func() error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", d.Metrics.Handler())
	}

	h := d.CourseHandler
	api := e.Group("/api")

	public := api.Group("", d.Authn.Optional)
	public.GET("/courses", h.ListCourses)
	public.GET("/courses/search", h.SearchCourses)
	public.GET("/courses/:id", h.GetCourse)
	public.GET("/courses/:id/lessons", h.ListLessons)
	public.GET("/courses/:id/lessons/:lessonId", h.GetLesson)
	public.GET("/courses/:id/reviews", h.ListReviews)

	private := api.Group("", d.Authn.RequireAuth)
	private.DELETE("/courses/:id/enroll", h.Unenroll)
	private.GET("/courses/:id/progress", h.Progress)
	private.POST("/courses/:id/lessons/:lessonId/complete", h.CompleteLesson)
	private.GET("/me/enrollments", h.MyEnrollments)
	private.GET("/me/wishlist", h.Wishlist)
	private.POST("/courses/:id/wishlist", h.AddToWishlist)
	private.DELETE("/courses/:id/wishlist", h.RemoveFromWishlist)

	students := api.Group("", d.Authn.RequireAuth, authmw.RequireStudent)
	students.POST("/courses/:id/enroll", h.Enroll)
	students.POST("/courses/:id/reviews", h.SaveReview)

	instructors := api.Group("", d.Authn.RequireAuth, authmw.RequireInstructorOrAdmin)
	instructors.GET("/instructor/courses", h.InstructorCourses)
	instructors.POST("/courses", h.CreateCourse)
	instructors.PATCH("/courses/:id", h.UpdateCourse)
	instructors.DELETE("/courses/:id", h.DeleteCourse)
	instructors.POST("/courses/:id/publish", h.Publish)
	instructors.POST("/courses/:id/unpublish", h.Unpublish)
	instructors.POST("/courses/:id/lessons", h.CreateLesson)
	instructors.PUT("/courses/:id/lessons/order", h.ReorderLessons)
	instructors.PATCH("/courses/:id/lessons/:lessonId", h.UpdateLesson)
	instructors.DELETE("/courses/:id/lessons/:lessonId", h.DeleteLesson)
}
