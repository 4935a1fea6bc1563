package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/lms/pkg/metrics"
	loggingmw "github.com/Skotchmaster/lms/pkg/middleware/logging"
)

// Common is the gateway chain. Counters sit inside the request logger so they
// see the final status.
func Common(logger *slog.Logger, m *metrics.Metrics, counter *RequestCounter, corsOrigin string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		ecM.Recover(),
		loggingmw.RequestLogger(logger),
		m.Middleware,
		counter.Middleware,
		ecM.Secure(),
		ecM.CORSWithConfig(ecM.CORSConfig{
			AllowOrigins:     []string{corsOrigin},
			AllowCredentials: true,
		}),
	}
}
