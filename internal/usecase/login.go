package usecase

import (
	"context"
	"log/slog"

	"tenant-gate/internal/domain"
	"tenant-gate/utils/logger"
)

// Login checks credentials and binds the caller's session for the current
// domain scope.
type Login struct {
	directory domain.Directory
	sessions  domain.SessionStore
	logger    *logger.ContextLogger
}

// NewLogin creates a new Login usecase.
func NewLogin(d domain.Directory, s domain.SessionStore, l *slog.Logger) *Login {
	return &Login{directory: d, sessions: s, logger: logger.NewContextLogger(l)}
}

// LoginResult carries the authenticated principal and its new session.
type LoginResult struct {
	Principal *domain.Principal
	Session   *domain.Session
}

// Execute authenticates email/password and creates an authenticated session
// scoped to dctx. Logging in on a tenant domain additionally requires
// membership of that tenant; a valid credential pair is not enough to open a
// session in a tenant the user cannot access.
func (uc *Login) Execute(ctx context.Context, email, password string, dctx domain.DomainContext) (*LoginResult, error) {
	scope, err := domain.ScopeFor(dctx)
	if err != nil {
		return nil, err
	}

	principal, err := uc.directory.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if dctx.IsTenant() && !principal.MemberOf(dctx.TenantID) {
		uc.logger.WithContext(ctx).WarnContext(ctx, "login refused on foreign tenant domain",
			"user_id", principal.ID,
			"tenant_id", dctx.TenantID)
		return nil, domain.ErrInvalidTenant
	}

	session := uc.sessions.LoadOrCreate(scope)
	bound, ok := uc.sessions.Bind(scope, session.ID, principal.ID)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	uc.logger.WithContext(ctx).InfoContext(ctx, "user logged in",
		"user_id", principal.ID,
		"scope", scope)
	return &LoginResult{Principal: principal, Session: bound}, nil
}
