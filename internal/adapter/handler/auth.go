package handler

import (
	"net/http"
	"time"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/usecase"
	"tenant-gate/middleware"
	"tenant-gate/utils/logger"

	"github.com/labstack/echo/v4"
)

// AuthHandler serves the /auth endpoints shared by the login and tenant
// domains.
type AuthHandler struct {
	login        *usecase.Login
	logout       *usecase.Logout
	validate     *usecase.ValidateSession
	initSession  *usecase.InitTenantSession
	cookieMaxAge time.Duration
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(login *usecase.Login, logout *usecase.Logout, validate *usecase.ValidateSession, initSession *usecase.InitTenantSession, cookieMaxAge time.Duration) *AuthHandler {
	return &AuthHandler{
		login:        login,
		logout:       logout,
		validate:     validate,
		initSession:  initSession,
		cookieMaxAge: cookieMaxAge,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Tenants []string `json:"tenants"`
}

type loginResponse struct {
	User    userPayload `json:"user"`
	Tenants []string    `json:"tenants"`
}

func toUserPayload(p *domain.Principal) userPayload {
	return userPayload{ID: p.ID, Email: p.Email, Name: p.Name, Tenants: p.Tenants}
}

// HandleLogin processes POST /auth/login.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	dctx := middleware.DomainContextFrom(c)
	ctx := logger.WithAuthStage(c.Request().Context(), "login")
	result, err := h.login.Execute(ctx, req.Email, req.Password, dctx)
	if err != nil {
		return mapDomainError(err)
	}

	middleware.SetSessionCookie(c, result.Session.Scope, result.Session.ID, h.cookieMaxAge)
	return c.JSON(http.StatusOK, loginResponse{
		User:    toUserPayload(result.Principal),
		Tenants: result.Principal.Tenants,
	})
}

// HandleLogout processes POST /auth/logout. Idempotent: logging out without
// a session still succeeds.
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	dctx := middleware.DomainContextFrom(c)

	sessionID := ""
	if session := middleware.SessionFrom(c); session != nil {
		sessionID = session.ID
	}

	ctx := logger.WithAuthStage(c.Request().Context(), "logout")
	if err := h.logout.Execute(ctx, dctx, sessionID); err != nil {
		return mapDomainError(err)
	}

	if scope, err := domain.ScopeFor(dctx); err == nil {
		middleware.ClearSessionCookie(c, scope)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// HandleValidateSession processes GET /auth/validate-session. It always
// answers 200 with a validity flag; the session middleware already turned
// idle expiry into a 401 before this handler runs.
func (h *AuthHandler) HandleValidateSession(c echo.Context) error {
	dctx := middleware.DomainContextFrom(c)
	session := middleware.SessionFrom(c)
	if session == nil {
		return c.JSON(http.StatusOK, map[string]bool{"valid": false})
	}

	ctx := logger.WithAuthStage(c.Request().Context(), "validate")
	result, err := h.validate.Execute(ctx, dctx, session.ID)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]bool{"valid": false})
	}

	c.Response().Header().Set("X-Gate-Api-Token", result.APIToken)
	return c.JSON(http.StatusOK, map[string]bool{"valid": true})
}

type initSessionResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// HandleInitSession processes GET /auth/init-session/:tenantId on the login
// domain: it mints the handoff token the client carries to the tenant domain.
func (h *AuthHandler) HandleInitSession(c echo.Context) error {
	dctx := middleware.DomainContextFrom(c)
	session := middleware.SessionFrom(c)
	if !session.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ctx := logger.WithAuthStage(c.Request().Context(), "handoff-init")
	token, err := h.initSession.Execute(ctx, session.UserID, c.Param("tenantId"), dctx)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, initSessionResponse{Success: true, Token: token.Value})
}

// HandleMe processes GET /users/login/me and GET /users/tenant/me: the
// current principal for whichever scope the request arrived under.
func (h *AuthHandler) HandleMe(c echo.Context) error {
	dctx := middleware.DomainContextFrom(c)
	session := middleware.SessionFrom(c)
	if !session.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	result, err := h.validate.Execute(c.Request().Context(), dctx, session.ID)
	if err != nil {
		return mapDomainError(err)
	}

	return c.JSON(http.StatusOK, toUserPayload(result.Principal))
}
