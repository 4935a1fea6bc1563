package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/metrics"
)

type Deps struct {
	AuthURL   string
	CourseURL string
	Metrics   *metrics.Metrics

	// Transport is shared by every upstream; nil uses the default pool settings.
	Transport http.RoundTripper
}

// Routes lists the public prefixes the gateway forwards.
func Routes(d *Deps) map[string]Route {
	return map[string]Route{
		"/api/auth":       {Name: "auth", Target: d.AuthURL, From: "/api/auth", To: "/auth"},
		"/api/courses":    {Name: "course", Target: d.CourseURL, From: "/api/courses", To: "/api/courses"},
		"/api/me":         {Name: "course", Target: d.CourseURL, From: "/api/me", To: "/api/me"},
		"/api/instructor": {Name: "course", Target: d.CourseURL, From: "/api/instructor", To: "/api/instructor"},
	}
}

func Register(e *echo.Echo, d *Deps) error {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if d.Metrics != nil {
		e.GET("/metrics", d.Metrics.Handler())
	}

	transport := d.Transport
	if transport == nil {
		transport = newTransport()
	}

	for prefix, route := range Routes(d) {
		h, err := newProxy(route, transport)
		if err != nil {
			return err
		}
		e.Any(prefix, h)
		e.Any(prefix+"/*", h)
	}
	return nil
}
