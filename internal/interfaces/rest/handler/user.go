package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/metrics"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/user"
	"go.uber.org/zap"
)

// UserHandler user related operations
type UserHandler struct {
	JWTUtil     *auth.JWTUtil
	KVStore     driver.KeyValueDB
	UserUseCase user.UserUseCase
	Validator   validate.Validator
	Metrics     *metrics.Metrics
}

// NewUserHandler create an user controller instance
func NewUserHandler(
	JWTUtil *auth.JWTUtil,
	KVStore driver.KeyValueDB,
	UserUseCase user.UserUseCase,
	Validator validate.Validator,
	Metrics *metrics.Metrics,
) *UserHandler {
	return &UserHandler{
		JWTUtil:     JWTUtil,
		KVStore:     KVStore,
		UserUseCase: UserUseCase,
		Validator:   Validator,
		Metrics:     Metrics,
	}
}

// LoginResponse body of a successful login
type LoginResponse struct {
	Token string          `json:"token"`
	User  *user.UserModel `json:"user"`
}

// HandleSignIn ...
func (uh *UserHandler) HandleSignIn(c echo.Context) (err error) {
	ju := uh.JWTUtil

	// parse body
	cred := new(user.Credential)
	if err = c.Bind(cred); err != nil {
		return replyBindError(c, err)
	}
	if err := localized(c, uh.Validator).Struct(cred); err != nil {
		return replyValidationError(c, "Failed to validate fields", err)
	}

	ctx := c.Request().Context()
	model, err := uh.UserUseCase.SignIn(ctx, cred)
	switch {
	case errors.Is(err, user.ErrNoSuchUser):
		uh.countLogin("failure")
		return replyError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, user.ErrUserTooManyRetry):
		uh.countLogin("locked")
		return replyError(c, http.StatusForbidden, err.Error())
	case err != nil:
		return err
	}
	uh.countLogin("success")

	// issue JWT
	tokenStr, err := ju.GenerateTokenStr(model)
	if err != nil {
		return err
	}
	ju.SetClientToken(c, tokenStr)
	logging.ExtractLoggerFromContext(ctx).Info("User signed in", zap.String("user.id", model.ID))
	return c.JSON(http.StatusOK, &LoginResponse{Token: tokenStr, User: model})
}

// HandleSignUp ...
func (uh *UserHandler) HandleSignUp(c echo.Context) (err error) {
	form := new(user.SignUpForm)
	if err = c.Bind(form); err != nil {
		return replyBindError(c, err)
	}

	// validation
	if err := localized(c, uh.Validator).Struct(form); err != nil {
		return replyValidationError(c, "Failed to validate fields", err)
	}

	// register
	model, err := uh.UserUseCase.SignUp(c.Request().Context(), form)
	if err != nil {
		if errors.Is(err, user.ErrDuplicatedUser) {
			return replyError(c, http.StatusConflict, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusCreated, model)
}

// HandleSignOut ...
func (uh *UserHandler) HandleSignOut(c echo.Context) (err error) {
	ju := uh.JWTUtil
	kv := uh.KVStore

	tokenStr, err := ju.ExtractToken(c)
	if err != nil {
		return c.NoContent(http.StatusOK)
	}
	token, err := ju.Validate(tokenStr)
	if err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	ju.ClearClientToken(c)
	if err := kv.SetEX(auth.BlacklistKey(tokenStr), token.UID, token.TimeRemaining()); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// HandleUserExists ...
func (uh *UserHandler) HandleUserExists(c echo.Context) (err error) {
	username := c.QueryParam("username")
	email := c.QueryParam("email")

	if err := uh.Validator.AllEmpty([]string{"username", "email"}, username, email); err != nil {
		return replyValidationError(c, "Failed to validate params", []*validate.FieldError{err})
	}

	existing, err := uh.UserUseCase.Exists(c.Request().Context(), username, email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}

func (uh *UserHandler) countLogin(status string) {
	if uh.Metrics != nil {
		uh.Metrics.LoginAttempts.WithLabelValues(status).Inc()
	}
}

// localized pick the validator locale from Accept-Language
func localized(c echo.Context, v validate.Validator) validate.Validator {
	lang := c.Request().Header.Get("Accept-Language")
	if strings.HasPrefix(strings.ToLower(lang), "zh") {
		return v.WithLocale("zh")
	}
	return v
}
