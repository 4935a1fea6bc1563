package authmw

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/logging"
)

// Require rejects requests whose principal does not satisfy policy. It must run
// after RequireAuth; a denied request never reaches the handler.
func Require(policy authz.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return errMissingToken
			}
			if err := authz.Authorize(p, policy); err != nil {
				logging.FromContext(c.Request().Context()).Warn("access_denied", "status", 403, "policy", policy.Name, "path", c.Path())
				return err
			}
			return next(c)
		}
	}
}

var (
	RequireAdmin             = Require(authz.AdminOnly)
	RequireInstructorOrAdmin = Require(authz.InstructorOrAdmin)
	RequireStudent           = Require(authz.StudentOrAdmin)
)
