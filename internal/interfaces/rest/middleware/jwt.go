package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
)

// HeaderRefreshToken carries a refreshed token for bearer clients
const HeaderRefreshToken = "X-Refresh-Token"

const defaultRefreshThreshold = 5 * time.Minute

// ValidateTokenOption ...
type ValidateTokenOption struct {
	// InBlackList reports whether a signed-out token is presented again, nil disables the check
	InBlackList func(token string) (bool, error)
}

// RefreshTokenOption ...
type RefreshTokenOption struct {
	Threshold time.Duration
}

// VerifyToken reject requests without a valid, non blacklisted token and bind its claims to the context
func VerifyToken(ju *auth.JWTUtil, options ...*ValidateTokenOption) echo.MiddlewareFunc {
	var inBlacklist func(string) (bool, error)
	if len(options) > 0 {
		inBlacklist = options[0].InBlackList
	}

	authenticate := func(c echo.Context) (*auth.AppTokenClaims, error) {
		tokenStr, err := ju.ExtractToken(c)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		if inBlacklist != nil {
			revoked, err := inBlacklist(tokenStr)
			if err != nil {
				return nil, fmt.Errorf("check token blacklist: %w", err)
			}
			if revoked {
				return nil, echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
			}
		}
		claims, err := ju.Validate(tokenStr)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return claims, nil
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := authenticate(c)
			if err != nil {
				return err
			}
			ju.SetContextToken(c, claims)
			return next(c)
		}
	}
}

// RefreshToken reissue the token once it is about to expire, must be chained after VerifyToken.
// The new token is set in the cookie and the X-Refresh-Token header.
func RefreshToken(ju *auth.JWTUtil, options ...*RefreshTokenOption) echo.MiddlewareFunc {
	threshold := defaultRefreshThreshold
	if len(options) > 0 && options[0].Threshold > 0 {
		threshold = options[0].Threshold
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if claims := ju.GetContextToken(c); claims != nil && claims.TimeRemaining() < threshold {
				// the bound claims stay untouched, handlers see the token they were called with
				refreshed := *claims
				tokenStr, err := ju.Sign(ju.RefreshToken(&refreshed))
				if err != nil {
					return fmt.Errorf("refresh token: %w", err)
				}
				ju.SetClientToken(c, tokenStr)
				c.Response().Header().Set(HeaderRefreshToken, tokenStr)
			}
			return next(c)
		}
	}
}
