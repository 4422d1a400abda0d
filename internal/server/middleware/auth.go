package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type detail struct {
	Detail string `json:"detail"`
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, detail{Detail: "Authentication credentials were not provided or are invalid."})
}

// AuthMiddleware accepts the static API key or a JWT signed by a key from
// the configured JWKS. With neither configured every request is let
// through as the local user.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ac := c.(*AppContext)
		app := ac.App
		if app.AuthDisabled() {
			ac.User = &AppUser{Subject: "local"}
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return unauthorized(c)
		}

		if app.APIKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(app.APIKey)) == 1 {
			ac.User = &AppUser{Subject: "api-key", APIKey: true}
			return next(c)
		}
		if app.Keyfunc == nil {
			return unauthorized(c)
		}

		parsed, err := jwt.Parse(token, app.Keyfunc)
		if err != nil || !parsed.Valid {
			return unauthorized(c)
		}
		sub, err := parsed.Claims.GetSubject()
		if err != nil || sub == "" {
			return unauthorized(c)
		}

		ac.User = &AppUser{Subject: sub}
		return next(c)
	}
}
