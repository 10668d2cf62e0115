package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/usecase"
	"tenant-gate/middleware"
	"tenant-gate/utils/logger"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// TenantHandler serves the /tenant endpoints on tenant domains.
type TenantHandler struct {
	verify       *usecase.VerifyHandoff
	domains      domain.Domains
	frontendPort string
	cookieMaxAge time.Duration
	clock        clockwork.Clock
}

// NewTenantHandler creates a new tenant handler. frontendPort is where the
// tenant SPA is served; browser requests get redirected there after a
// successful handoff.
func NewTenantHandler(verify *usecase.VerifyHandoff, domains domain.Domains, frontendPort string, cookieMaxAge time.Duration, clock clockwork.Clock) *TenantHandler {
	return &TenantHandler{
		verify:       verify,
		domains:      domains,
		frontendPort: frontendPort,
		cookieMaxAge: cookieMaxAge,
		clock:        clock,
	}
}

type verifyTokenResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TenantID string `json:"tenantId,omitempty"`
}

// HandleVerifyToken processes GET /tenant/verify-token/:token. A successful
// verification establishes the tenant-scope session; API callers get JSON
// and browsers get a redirect to the tenant frontend. All failures share one
// generic response.
func (h *TenantHandler) HandleVerifyToken(c echo.Context) error {
	dctx := middleware.DomainContextFrom(c)

	ctx := logger.WithAuthStage(c.Request().Context(), "handoff-verify")
	result, err := h.verify.Execute(ctx, c.Param("token"), dctx)
	if err != nil {
		if wantsJSON(c) {
			return c.JSON(http.StatusUnauthorized, verifyTokenResponse{
				Success: false,
				Message: "Authentication failed",
			})
		}
		return c.String(http.StatusUnauthorized, "Authentication failed")
	}

	middleware.SetSessionCookie(c, result.Session.Scope, result.Session.ID, h.cookieMaxAge)
	c.Response().Header().Set("X-Gate-Api-Token", result.APIToken)

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, verifyTokenResponse{
			Success:  true,
			Message:  "Token verified successfully",
			TenantID: dctx.TenantID,
		})
	}
	return c.Redirect(http.StatusFound, h.domains.TenantURL(c.Scheme(), dctx.TenantID, h.frontendPort, "/"))
}

// HandleDashboard processes GET /tenant/dashboard, a session-gated route.
func (h *TenantHandler) HandleDashboard(c echo.Context) error {
	dctx := middleware.DomainContextFrom(c)
	session := middleware.SessionFrom(c)

	return c.JSON(http.StatusOK, map[string]string{
		"tenantId": dctx.TenantID,
		"userId":   session.UserID,
		"message":  fmt.Sprintf("Welcome to %s", c.Request().Host),
	})
}

// HandlePing processes GET /tenant/ping. The session middleware already
// bumped last-access; this endpoint exists so clients have a cheap way to
// keep a session fresh and probe its liveness.
func (h *TenantHandler) HandlePing(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Session refreshed",
		"timestamp": h.clock.Now().UnixMilli(),
	})
}

// wantsJSON distinguishes API calls from browser navigation.
func wantsJSON(c echo.Context) bool {
	if c.Request().Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(c.Request().Header.Get("Accept"), "application/json")
}
