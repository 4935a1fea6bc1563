package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestCounter counts proxied requests as lms_gateway_requests_total{route,status}.
type RequestCounter struct {
	Requests *prometheus.CounterVec
}

func NewRequestCounter(reg prometheus.Registerer) *RequestCounter {
	c := &RequestCounter{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests handled by the gateway by route and status",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(c.Requests)
	return c
}

func (rc *RequestCounter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		rc.Requests.WithLabelValues(route, strconv.Itoa(c.Response().Status)).Inc()
		return nil
	}
}
