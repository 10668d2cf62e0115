package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"tenant-gate/internal/domain"
	"tenant-gate/utils/logger"

	"github.com/labstack/echo/v4"
)

const (
	domainContextKey = "tenant-gate.domain_context"
	sessionKey       = "tenant-gate.session"
)

// SessionScope classifies the request host, loads the session for exactly
// that scope's cookie, enforces the idle timeout on tenant domains and bumps
// last-access for authenticated requests. The cookie name is derived from the
// domain context, so a credential presented under the wrong domain is simply
// never read.
func SessionScope(domains domain.Domains, sessions domain.SessionStore, idleTimeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			dctx := domains.Classify(c.Request().Host)
			c.Set(domainContextKey, dctx)

			scope, err := domain.ScopeFor(dctx)
			if err != nil {
				// Unknown host: no session semantics apply here.
				return next(c)
			}

			// Downstream log lines carry the scope and tenant from here on.
			ctx := logger.WithSessionScope(c.Request().Context(), scope)
			if dctx.IsTenant() {
				ctx = logger.WithTenantID(ctx, dctx.TenantID)
			}
			c.SetRequest(c.Request().WithContext(ctx))

			cookie, err := c.Cookie(scope)
			if err != nil {
				return next(c)
			}

			session, found := sessions.Load(scope, cookie.Value)
			if !found {
				// Stale cookie: drop it and proceed anonymously so handoff
				// verification is still reachable.
				ClearSessionCookie(c, scope)
				return next(c)
			}

			if dctx.IsTenant() {
				if sessions.ExpireIfIdle(scope, session.ID, idleTimeout) == domain.OutcomeExpired {
					slog.InfoContext(c.Request().Context(), "session expired",
						"scope", scope)
					ClearSessionCookie(c, scope)
					return echo.NewHTTPError(http.StatusUnauthorized, "Session expired")
				}
			}

			if session.Authenticated() {
				if touched, ok := sessions.Touch(scope, session.ID); ok {
					session = touched
				}
				ctx = logger.WithUserID(ctx, session.UserID)
				c.SetRequest(c.Request().WithContext(ctx))
			}

			c.Set(sessionKey, session)
			return next(c)
		}
	}
}

// RequireAuthenticated rejects requests that reach a gated route without an
// authenticated session in the current scope. Fail-closed: no session, an
// anonymous session and an unknown domain all read as unauthenticated.
func RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := SessionFrom(c)
			if !session.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// DomainContextFrom returns the classification stored by SessionScope.
func DomainContextFrom(c echo.Context) domain.DomainContext {
	if dctx, ok := c.Get(domainContextKey).(domain.DomainContext); ok {
		return dctx
	}
	return domain.DomainContext{Kind: domain.KindUnknown}
}

// SessionFrom returns the session loaded by SessionScope, or nil.
func SessionFrom(c echo.Context) *domain.Session {
	if session, ok := c.Get(sessionKey).(*domain.Session); ok {
		return session
	}
	return nil
}

// SetSessionCookie writes the scope's session cookie. HttpOnly and Lax so the
// browser presents it on same-site navigation but scripts cannot read it.
func SetSessionCookie(c echo.Context, scope, sessionID string, maxAge time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     scope,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the scope's session cookie.
func ClearSessionCookie(c echo.Context, scope string) {
	c.SetCookie(&http.Cookie{
		Name:     scope,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
