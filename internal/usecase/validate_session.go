package usecase

import (
	"context"
	"log/slog"

	"tenant-gate/internal/domain"
	"tenant-gate/utils/logger"
)

// ValidateSession reports whether the caller's session for the current scope
// is still live, refreshing its last-access instant when it is.
type ValidateSession struct {
	directory domain.Directory
	sessions  domain.SessionStore
	apiTokens domain.APITokenIssuer
	logger    *logger.ContextLogger
}

// NewValidateSession creates a new ValidateSession usecase.
func NewValidateSession(d domain.Directory, s domain.SessionStore, t domain.APITokenIssuer, l *slog.Logger) *ValidateSession {
	return &ValidateSession{directory: d, sessions: s, apiTokens: t, logger: logger.NewContextLogger(l)}
}

// ValidationResult carries the live principal and a fresh API token.
type ValidationResult struct {
	Principal *domain.Principal
	Session   *domain.Session
	APIToken  string
}

// Execute resolves the session and its principal. On a tenant domain the
// principal must also be a member of the visited tenant; a session that is
// valid elsewhere does not grant access here.
func (uc *ValidateSession) Execute(ctx context.Context, dctx domain.DomainContext, sessionID string) (*ValidationResult, error) {
	scope, err := domain.ScopeFor(dctx)
	if err != nil {
		return nil, err
	}

	session, found := uc.sessions.Load(scope, sessionID)
	if !found || !session.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}

	principal, err := uc.directory.Lookup(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	if dctx.IsTenant() && !principal.MemberOf(dctx.TenantID) {
		uc.logger.WithContext(ctx).WarnContext(ctx, "session user is not a member of visited tenant",
			"user_id", principal.ID,
			"tenant_id", dctx.TenantID)
		return nil, domain.ErrUnauthenticated
	}

	touched, ok := uc.sessions.Touch(scope, sessionID)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	apiToken, err := uc.apiTokens.Issue(principal, dctx.TenantID, touched.ID)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{Principal: principal, Session: touched, APIToken: apiToken}, nil
}
