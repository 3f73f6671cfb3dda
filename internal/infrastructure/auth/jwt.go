// Package auth issues and verifies learner session tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/user"
)

// ErrNoToken request carries neither a bearer token nor a token cookie
var ErrNoToken = errors.New("No token found in request")

const bearerPrefix = "Bearer "

// AppTokenClaims session claims, UID is also stored as the subject
type AppTokenClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`

	jwt.StandardClaims
}

// TimeRemaining time left before the token expires, 0 once expired
func (tk *AppTokenClaims) TimeRemaining() time.Duration {
	if left := time.Until(time.Unix(tk.ExpiresAt, 0)); left > 0 {
		return left
	}
	return 0
}

// JWTUtil signs session tokens and moves them between requests and the echo context
type JWTUtil struct {
	secret    []byte
	tokenName string // cookie name and echo context key
	timeout   time.Duration
	method    jwt.SigningMethod
	issuer    string
}

// NewJWTUtil only HMAC methods are supported, anything but HS512 falls back to HS256
func NewJWTUtil(method, secret, tokenName string, timeout time.Duration) *JWTUtil {
	var signMethod jwt.SigningMethod = jwt.SigningMethodHS256
	if method == jwt.SigningMethodHS512.Alg() {
		signMethod = jwt.SigningMethodHS512
	}
	return &JWTUtil{
		method:    signMethod,
		secret:    []byte(secret),
		tokenName: tokenName,
		timeout:   timeout,
	}
}

// WithIssuer stamp issued tokens with issuer and reject tokens of other issuers
func (ju *JWTUtil) WithIssuer(issuer string) *JWTUtil {
	ju.issuer = issuer
	return ju
}

// Sign sign token
func (ju *JWTUtil) Sign(claims *AppTokenClaims) (string, error) {
	return jwt.NewWithClaims(ju.method, claims).SignedString(ju.secret)
}

// Validate parse tokenStr and check its signature, expiry and issuer
func (ju *JWTUtil) Validate(tokenStr string) (*AppTokenClaims, error) {
	claims := new(AppTokenClaims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != ju.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return ju.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if ju.issuer != "" && !claims.VerifyIssuer(ju.issuer, true) {
		return nil, fmt.Errorf("unexpected token issuer: %q", claims.Issuer)
	}
	return claims, nil
}

// GenerateTokenStr issue a session token for user
func (ju *JWTUtil) GenerateTokenStr(user *user.UserModel) (string, error) {
	now := time.Now()
	return ju.Sign(&AppTokenClaims{
		UID:   user.ID,
		Email: user.Email,
		Name:  user.Username,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			Issuer:    ju.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ju.timeout).Unix(),
		},
	})
}

// RefreshToken push token expiration timeout away from now
func (ju *JWTUtil) RefreshToken(claims *AppTokenClaims) *AppTokenClaims {
	claims.ExpiresAt = time.Now().Add(ju.timeout).Unix()
	return claims
}

// SetClientToken set token in client cookie
func (ju *JWTUtil) SetClientToken(c echo.Context, tokenStr string) {
	ju.writeCookie(c, tokenStr, time.Now().Add(ju.timeout))
}

// ClearClientToken expire the client cookie
func (ju *JWTUtil) ClearClientToken(c echo.Context) {
	ju.writeCookie(c, "", time.Unix(0, 0))
}

func (ju *JWTUtil) writeCookie(c echo.Context, value string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     ju.tokenName,
		Value:    value,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

// SetContextToken bind verified claims to the request
func (ju *JWTUtil) SetContextToken(c echo.Context, token *AppTokenClaims) {
	c.Set(ju.tokenName, token)
}

// GetContextToken claims bound by SetContextToken, nil outside of jwt protected routes
func (ju *JWTUtil) GetContextToken(c echo.Context) *AppTokenClaims {
	v, _ := c.Get(ju.tokenName).(*AppTokenClaims)
	return v
}

// ExtractToken get token string from the Authorization header, falling back to the cookie
func (ju *JWTUtil) ExtractToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, bearerPrefix) {
		if token := strings.TrimSpace(header[len(bearerPrefix):]); token != "" {
			return token, nil
		}
	}
	if cookie, err := c.Cookie(ju.tokenName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", ErrNoToken
}

// Timeout token lifetime
func (ju *JWTUtil) Timeout() time.Duration {
	return ju.timeout
}

// BlacklistKey kv key marking a signed-out token
func BlacklistKey(tokenStr string) string {
	return "blacklist:" + tokenStr
}
