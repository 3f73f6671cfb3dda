package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig ...
type LoggingConfig struct {
	Skipper middleware.Skipper
}

// accessLevel 5xx are errors, 4xx warnings, everything else is debug noise
func accessLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case status >= http.StatusBadRequest:
		return zap.WarnLevel
	default:
		return zap.DebugLevel
	}
}

func requestFields(c echo.Context) []zap.Field {
	req := c.Request()
	fields := []zap.Field{
		zap.String("trace.id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.String("url.path", req.RequestURI),
		zap.String("client.address", c.RealIP()),
		zap.String("http.request.method", req.Method),
		zap.Int64("http.request.body.byte", req.ContentLength),
	}
	if names := c.ParamNames(); len(names) > 0 {
		fields = append(fields,
			zap.Strings("route.params.name", names),
			zap.Strings("route.params.value", c.ParamValues()),
		)
	}
	return fields
}

// Logging access log, one entry per request once the handler chain returned
func Logging(base *zap.Logger, options ...*LoggingConfig) echo.MiddlewareFunc {
	skipper := middleware.DefaultSkipper
	if len(options) > 0 && options[0].Skipper != nil {
		skipper = options[0].Skipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if ce := base.Check(accessLevel(status), http.StatusText(status)); ce != nil {
				fields := append(requestFields(c),
					zap.Int("http.response.status_code", status),
					zap.Duration("event.duration", time.Since(start)),
				)
				ce.Write(fields...)
			}
			return err
		}
	}
}

// SetTraceLogger put a logger carrying the request id and matched route into the request context
func SetTraceLogger(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			fields := []zap.Field{zap.String("trace.id", c.Response().Header().Get(echo.HeaderXRequestID))}
			if route := c.Path(); route != "" {
				fields = append(fields, zap.String("http.route", route))
			}
			req := c.Request()
			c.SetRequest(req.WithContext(logging.SetLoggerInContext(req.Context(), base.With(fields...))))
			return next(c)
		}
	}
}
