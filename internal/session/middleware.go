package session

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/usercrud/internal/controller"
)

const (
	// CookieName is the session cookie set on every page and API response
	// that had to create a session.
	CookieName = "_usercrud_session"

	controllerContextKey = "session_controller"
	idContextKey         = "session_id"
)

// Middleware resolves the request's session from its cookie, creating one
// when needed, and stores the controller in the gin.Context. cookiePath
// scopes the cookie; an empty value means "/".
func Middleware(store *Store, cookiePath string) gin.HandlerFunc {
	if cookiePath == "" {
		cookiePath = "/"
	}
	secure := gin.Mode() == gin.ReleaseMode

	return func(c *gin.Context) {
		cookie, _ := c.Cookie(CookieName)
		id, ctrl, created := store.Acquire(cookie)
		if created {
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     CookieName,
				Value:    id,
				Path:     cookiePath,
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteStrictMode,
			})
		}

		c.Set(controllerContextKey, ctrl)
		c.Set(idContextKey, id)

		ctx := logger.WithContextAttrs(c.Request.Context(), slog.String("session_id", id))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// Controller returns the controller stored by Middleware.
func Controller(c *gin.Context) (*controller.Controller, bool) {
	v, exists := c.Get(controllerContextKey)
	if !exists {
		return nil, false
	}
	ctrl, ok := v.(*controller.Controller)
	return ctrl, ok
}

// ID returns the session id stored by Middleware, or "" when absent.
func ID(c *gin.Context) string {
	if v, exists := c.Get(idContextKey); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
