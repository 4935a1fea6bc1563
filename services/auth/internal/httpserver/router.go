package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/metrics"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
)

type Deps struct {
	AuthHandler *AuthHTTP
	Authn       *authmw.Authenticator
	Metrics     *metrics.Metrics
	// Ready reports whether backing stores are reachable.
	Ready func() error
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

	g := e.Group("/auth")
	g.POST("/signup", d.AuthHandler.Signup)
	g.POST("/login", d.AuthHandler.Login)
	g.POST("/refresh", d.AuthHandler.Refresh)
	g.POST("/logout", d.AuthHandler.Logout)
	g.POST("/forgot-password", d.AuthHandler.ForgotPassword)
	g.POST("/reset-password", d.AuthHandler.ResetPassword)

	private := g.Group("", d.Authn.RequireAuth)
	private.GET("/verify", d.AuthHandler.Verify)
	private.GET("/me", d.AuthHandler.Me)
	private.PATCH("/me", d.AuthHandler.UpdateMe)

	admin := g.Group("/users", d.Authn.RequireAuth, authmw.RequireAdmin)
	admin.GET("", d.AuthHandler.ListUsers)
	admin.PATCH("/:id/role", d.AuthHandler.SetRole)
}
