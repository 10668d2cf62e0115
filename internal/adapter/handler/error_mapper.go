package handler

import (
	"errors"
	"net/http"

	"tenant-gate/internal/domain"

	"github.com/labstack/echo/v4"
)

// mapDomainError converts a domain error into an appropriate echo.HTTPError.
// Handoff-token failures collapse into one generic message so a caller can
// not probe which specific check failed. Anything unrecognized fails closed
// as an internal error, never as access.
func mapDomainError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")

	case errors.Is(err, domain.ErrTokenNotFound),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTenantMismatch):
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication failed")

	case errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

	case errors.Is(err, domain.ErrInvalidTenant):
		return echo.NewHTTPError(http.StatusForbidden, "not a member of this tenant")

	case errors.Is(err, domain.ErrDomainMismatch):
		return echo.NewHTTPError(http.StatusNotFound, "unknown domain")

	case errors.Is(err, domain.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")

	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
