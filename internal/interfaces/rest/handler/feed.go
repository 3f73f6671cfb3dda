package handler

import (
	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/progress"
	"go.uber.org/zap"
)

// FeedHandler pushes the learner's own completion events over a websocket
type FeedHandler struct {
	Notifier *progress.Notifier
	JWTUtil  *auth.JWTUtil
	Metrics  *metrics.Metrics
}

// NewFeedHandler .
func NewFeedHandler(Notifier *progress.Notifier, JWTUtil *auth.JWTUtil, Metrics *metrics.Metrics) *FeedHandler {
	return &FeedHandler{Notifier: Notifier, JWTUtil: JWTUtil, Metrics: Metrics}
}

// HandleProgressFeed must be wrapped by infra.Websocket.WithHeartbeat
func (fh *FeedHandler) HandleProgressFeed(c echo.Context, conn *infra.Conn) error {
	claims := fh.JWTUtil.GetContextToken(c)
	logger := logging.ExtractLoggerFromContext(c.Request().Context()).With(zap.String("user.id", claims.UID))

	events, cancel := fh.Notifier.Subscribe(claims.UID)
	fh.setSubscribers()
	defer func() {
		cancel()
		fh.setSubscribers()
	}()
	logger.Debug("Progress feed opened")

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(e); err != nil {
				logger.Debug("Progress feed write failed", zap.Error(err))
				return nil
			}
		case <-conn.Done():
			logger.Debug("Progress feed closed")
			return nil
		}
	}
}

func (fh *FeedHandler) setSubscribers() {
	if fh.Metrics != nil {
		fh.Metrics.FeedSubscribers.Set(float64(fh.Notifier.Subscribers()))
	}
}
