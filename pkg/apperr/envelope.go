package apperr

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/logging"
)

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

func OKMessage(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: msg, Data: data})
}

// Handler replaces echo's default HTTPErrorHandler.
func Handler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := resolve(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request_failed", "status", status, "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, Envelope{Success: false, Message: msg})
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", werr)
	}
}

func resolve(err error) (int, string) {
	if he, ok := err.(*echo.HTTPError); ok {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			msg = s
		}
		return he.Code, msg
	}
	kind := KindOf(err)
	return kind.Status(), PublicMessage(err)
}
