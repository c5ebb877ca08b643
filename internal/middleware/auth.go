package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tagihin_dashboard/internal/session"
)

const sessionCookieName = "sid"

// RequireSession returns a middleware that resolves the session cookie
// against the session manager and redirects to the login boundary when no
// usable session exists.
func RequireSession(manager *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				return c.Redirect(http.StatusTemporaryRedirect, "/login")
			}

			store, err := manager.Resolve(c.Request().Context(), cookie.Value)
			if err != nil {
				// Transient platform failures surface through the central
				// error handler after retry exhaustion.
				return err
			}
			if store == nil {
				// No credential behind the cookie; clear it and re-login
				clearCookie := &http.Cookie{
					Name:     sessionCookieName,
					Value:    "",
					MaxAge:   -1,
					HttpOnly: true,
					Path:     "/",
				}
				c.SetCookie(clearCookie)
				return c.Redirect(http.StatusTemporaryRedirect, "/login")
			}

			c.Set("session", store)
			return next(c)
		}
	}
}

// SessionFromContext returns the store set by RequireSession, or nil
func SessionFromContext(c echo.Context) *session.Store {
	val := c.Get("session")
	if val == nil {
		return nil
	}
	store, ok := val.(*session.Store)
	if !ok {
		return nil
	}
	return store
}
