package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
)

// RequestMetrics observe request durations by route
func RequestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RequestDuration.
				WithLabelValues(c.Request().Method, path, strconv.Itoa(c.Response().Status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
