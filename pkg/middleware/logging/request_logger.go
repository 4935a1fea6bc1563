package loggingmw

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/logging"
)

// RequestLogger puts a request-scoped logger into the request context and writes
// one line per request. Errors are rendered here so the logged status is final.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			l := base.With(
				"request_id", rid,
				"method", req.Method,
				"path", c.Path(),
				"remote_ip", c.RealIP(),
			)
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Echo().HTTPErrorHandler(err, c)
			}
			status := c.Response().Status
			dur := time.Since(start).Milliseconds()

			// the auth middleware may have enriched the logger with the principal
			l = logging.FromContext(c.Request().Context())
			switch {
			case status >= 500:
				l.Error("http_request", "status", status, "duration_ms", dur, "error", errStr(err))
			case status >= 400:
				l.Warn("http_request", "status", status, "duration_ms", dur)
			default:
				l.Info("http_request", "status", status, "duration_ms", dur, "bytes", c.Response().Size)
			}
			return nil
		}
	}
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
