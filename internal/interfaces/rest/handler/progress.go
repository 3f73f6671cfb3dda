package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/progress"
)

// ProgressHandler progress record of the authenticated learner
type ProgressHandler struct {
	ProgressUseCase progress.ProgressUseCase
	JWTUtil         *auth.JWTUtil
	Validator       validate.Validator
}

// NewProgressHandler .
func NewProgressHandler(
	ProgressUseCase progress.ProgressUseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *ProgressHandler {
	return &ProgressHandler{
		ProgressUseCase: ProgressUseCase,
		JWTUtil:         JWTUtil,
		Validator:       Validator,
	}
}

// InitResponse body of an init reply
type InitResponse struct {
	Created bool `json:"created"`
}

// HandleGetProgress 404 until the record is initialized
func (ph *ProgressHandler) HandleGetProgress(c echo.Context) error {
	claims := ph.JWTUtil.GetContextToken(c)

	list, err := ph.ProgressUseCase.GetProgress(c.Request().Context(), claims.UID)
	if errors.Is(err, progress.ErrNotInitialized) {
		return replyError(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// HandleInitProgress idempotent, 201 when the record was created and 200 when it already existed
func (ph *ProgressHandler) HandleInitProgress(c echo.Context) error {
	claims := ph.JWTUtil.GetContextToken(c)

	created, err := ph.ProgressUseCase.InitProgress(c.Request().Context(), claims.UID)
	if err != nil {
		return err
	}
	if created {
		return c.JSON(http.StatusCreated, &InitResponse{Created: true})
	}
	return c.JSON(http.StatusOK, &InitResponse{Created: false})
}

// HandleCompleteLesson ...
func (ph *ProgressHandler) HandleCompleteLesson(c echo.Context) error {
	claims := ph.JWTUtil.GetContextToken(c)

	post := new(progress.CompleteRequest)
	if err := c.Bind(post); err != nil {
		return replyBindError(c, err)
	}
	if err := localized(c, ph.Validator).Struct(post); err != nil {
		return replyValidationError(c, "Failed to validate fields", err)
	}

	result, err := ph.ProgressUseCase.CompleteLesson(c.Request().Context(), claims.UID, post.LessonID)
	switch {
	case errors.Is(err, progress.ErrNotInitialized), errors.Is(err, progress.ErrNoSuchLesson):
		return replyError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, progress.ErrLessonLocked):
		return replyError(c, http.StatusConflict, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// HandleGetSummary ...
func (ph *ProgressHandler) HandleGetSummary(c echo.Context) error {
	claims := ph.JWTUtil.GetContextToken(c)

	summary, err := ph.ProgressUseCase.GetSummary(c.Request().Context(), claims.UID)
	if errors.Is(err, progress.ErrNotInitialized) {
		return replyError(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
