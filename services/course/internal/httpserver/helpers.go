package httpserver

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
)

var errInvalidBody = apperr.Validation("invalid body")

func paramID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation(name + " is not a uuid")
	}
	return id, nil
}

// viewer is the optional principal on public routes.
func viewer(c echo.Context) *authz.Principal {
	if p, ok := authmw.PrincipalFrom(c); ok {
		return &p
	}
	return nil
}
