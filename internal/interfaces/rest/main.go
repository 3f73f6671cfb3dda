package rest

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/course-progress/internal/course"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/interfaces/rest/handler"
	"github.com/pot-code/course-progress/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/pot-code/course-progress/internal/user"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

const materialsPrefix = "/materials"

// Services everything the http transport needs
type Services struct {
	Conn            driver.ITransactionalDB
	KV              driver.KeyValueDB
	UserUseCase     user.UserUseCase
	Catalog         handler.LessonCatalog
	Materials       *course.MaterialStore
	ProgressUseCase progress.ProgressUseCase
	Notifier        *progress.Notifier
	Metrics         *metrics.Metrics // nil disables /metrics
}

// NewApp create the echo app with every route registered
func NewApp(option *infra.AppConfig, svc *Services, logger *zap.Logger) *echo.Echo {
	var (
		app       = echo.New()
		validator = validate.NewValidator()
		websocket = infra.NewWebsocket()
		jwtUtil   = auth.NewJWTUtil(option.Security.JWTMethod,
			option.Security.JWTSecret,
			option.Security.TokenName,
			option.SessionTimeout).WithIssuer(option.AppID)
		jwtMiddleware = middleware.VerifyToken(jwtUtil, &middleware.ValidateTokenOption{
			InBlackList: func(token string) (bool, error) {
				return svc.KV.Exists(auth.BlacklistKey(token))
			},
		})
		refreshMiddleware = middleware.RefreshToken(jwtUtil, &middleware.RefreshTokenOption{
			Threshold: option.SessionRefresh,
		})
	)
	app.HideBanner = true
	app.HidePort = true

	registerLivenessProbe(app, svc.Conn, svc.KV)
	if svc.Metrics != nil {
		app.GET("/metrics", echo.WrapHandler(svc.Metrics.Handler()))
		app.Use(middleware.RequestMetrics(svc.Metrics))
	}
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			uri := e.Request().RequestURI
			return strings.HasPrefix(uri, "/healthz") || strings.HasPrefix(uri, "/metrics")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(http.StatusInternalServerError,
					handler.NewRESTStandardError(http.StatusInternalServerError, err.Error()).SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID), zap.String("url.path", c.Request().RequestURI))
			},
			HTTPErrorHandler: func(c echo.Context, he *echo.HTTPError) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(he.Code,
					handler.NewRESTStandardError(he.Code, fmt.Sprintf("%v", he.Message)).SetTraceID(traceID),
				)
			},
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
	}))
	app.Use(middleware.NoRouteMatched())

	if svc.Materials != nil {
		app.Static(materialsPrefix, svc.Materials.Root)
	}

	var (
		UserHandler     = handler.NewUserHandler(jwtUtil, svc.KV, svc.UserUseCase, validator, svc.Metrics)
		CourseHandler   = handler.NewCourseHandler(svc.Catalog, svc.Materials)
		ProgressHandler = handler.NewProgressHandler(svc.ProgressUseCase, jwtUtil, validator)
		FeedHandler     = handler.NewFeedHandler(svc.Notifier, jwtUtil, svc.Metrics)
	)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{echo_middleware.RequestID(), middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix: "/user",
					routes: []*route{
						{"POST", "/login", UserHandler.HandleSignIn, nil},
						{"PUT", "/sign-out", UserHandler.HandleSignOut, nil},
						{"POST", "/sign-up", UserHandler.HandleSignUp, nil},
						{"GET", "/exists", UserHandler.HandleUserExists, nil},
					},
				},
				{
					prefix: "",
					routes: []*route{
						{"GET", "/modules", CourseHandler.HandleGetModules, nil},
						{"GET", "/lessons/:id", CourseHandler.HandleGetLesson, nil},
						{"GET", "/check-file/:name", CourseHandler.HandleCheckFile, nil},
					},
				},
				{
					prefix:      "/progress",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
					routes: []*route{
						{"GET", "", ProgressHandler.HandleGetProgress, nil},
						{"GET", "/summary", ProgressHandler.HandleGetSummary, nil},
						{"POST", "/init", ProgressHandler.HandleInitProgress, nil},
						{"POST", "/complete", ProgressHandler.HandleCompleteLesson, nil},
					},
				},
				{
					prefix:      "/ws",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware},
					routes: []*route{
						{"GET", "/progress", websocket.WithHeartbeat(FeedHandler.HandleProgressFeed), nil},
					},
				},
			},
		})

	printRoutes(app, logger)
	return app
}

// Serve start app on addr and shut it down gracefully once ctx is done
func Serve(ctx context.Context, app *echo.Echo, addr string, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("server.address", addr))
		errc <- app.Start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Debug("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, db driver.ITransactionalDB, kv driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		if (db == nil || db.Ping() == nil) && kv.Ping() == nil {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
