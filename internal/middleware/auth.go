package middleware

import (
	"net/http"

	"estate-portal/internal/profile"
	"estate-portal/internal/session"
	"estate-portal/pkg/logger"
	"estate-portal/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Context keys set by SessionMiddleware.
const (
	SessionContextKey = "session"
	ProfileContextKey = "profile"
)

// SessionMiddleware resolves the portal session cookie and rejects
// anonymous requests. Downstream handlers read the session and profile
// from the Echo context.
func SessionMiddleware(manager *session.Manager, profiles *profile.Resolver, cookies session.CookieOptions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			cookie, err := c.Cookie(session.CookieName)
			if err != nil || cookie.Value == "" {
				prometheus.RecordAuthError("missing_session")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			// Resolve never fails: any problem with the session, its
			// persistence, or the token refresh comes back as anonymous.
			sess := manager.Resolve(c.Request().Context(), cookie.Value)
			if sess == nil {
				session.ClearCookie(c.Response(), cookies)
				prometheus.RecordAuthError("invalid_session")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired, sign in again"})
			}

			c.Set(SessionContextKey, sess)

			// The profile is best-effort here: a missing row only matters
			// to handlers that gate on the role, and they treat nil as the
			// least privilege.
			prof, err := profiles.Get(c.Request().Context(), sess.AccessToken, sess.UserID)
			if err != nil {
				log.Warn("profile lookup failed",
					zap.String("user_id", sess.UserID),
					zap.Error(err))
			}
			if prof != nil {
				c.Set(ProfileContextKey, prof)
			}

			return next(c)
		}
	}
}

// SessionFromContext returns the resolved session, or nil outside the
// middleware.
func SessionFromContext(c echo.Context) *session.Session {
	sess, _ := c.Get(SessionContextKey).(*session.Session)
	return sess
}

// ProfileFromContext returns the resolved profile. Nil means no profile
// row exists or the lookup failed; callers must treat that as an
// unprivileged user.
func ProfileFromContext(c echo.Context) *profile.Profile {
	prof, _ := c.Get(ProfileContextKey).(*profile.Profile)
	return prof
}
