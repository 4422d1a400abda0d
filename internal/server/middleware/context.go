package middleware

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/kinship-crm/kinship/internal/queue"
	"github.com/kinship-crm/kinship/internal/storage"
	"github.com/kinship-crm/kinship/pkg/assist"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
)

// AppUser is the authenticated caller.
type AppUser struct {
	Subject string
	APIKey  bool
}

// App carries the dependencies shared by all handlers.
type App struct {
	Store     store.Store
	Relations *relation.Service
	Assist    *assist.Service
	Bucket    storage.Bucket
	Queue     queue.Publisher

	// Keyfunc verifies JWT signatures. Nil disables JWT login.
	Keyfunc jwt.Keyfunc
	// APIKey is accepted verbatim as a bearer token when set.
	APIKey string
}

// AuthDisabled reports whether neither a key nor a JWT verifier is set.
func (a *App) AuthDisabled() bool {
	return a.APIKey == "" && a.Keyfunc == nil
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
