package usecase

import (
	"context"
	"log/slog"

	"tenant-gate/internal/domain"
	"tenant-gate/utils/logger"
)

// VerifyHandoff consumes a handoff token and establishes the tenant-scoped
// session it authorizes.
type VerifyHandoff struct {
	broker    domain.TokenBroker
	directory domain.Directory
	sessions  domain.SessionStore
	apiTokens domain.APITokenIssuer
	logger    *logger.ContextLogger
}

// NewVerifyHandoff creates a new VerifyHandoff usecase.
func NewVerifyHandoff(b domain.TokenBroker, d domain.Directory, s domain.SessionStore, t domain.APITokenIssuer, l *slog.Logger) *VerifyHandoff {
	return &VerifyHandoff{broker: b, directory: d, sessions: s, apiTokens: t, logger: logger.NewContextLogger(l)}
}

// HandoffResult carries the outcome of a successful handoff.
type HandoffResult struct {
	Principal *domain.Principal
	Session   *domain.Session
	APIToken  string
}

// Execute verifies and consumes the token under dctx, then creates the
// tenant-scope session bound to the token's user. The token is consumed
// before any further processing, so a concurrent duplicate request can never
// establish a second session from the same token.
func (uc *VerifyHandoff) Execute(ctx context.Context, value string, dctx domain.DomainContext) (*HandoffResult, error) {
	token, err := uc.broker.Verify(ctx, value, dctx)
	if err != nil {
		return nil, err
	}

	principal, err := uc.directory.Lookup(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	scope, err := domain.ScopeFor(dctx)
	if err != nil {
		return nil, err
	}

	session := uc.sessions.LoadOrCreate(scope)
	bound, ok := uc.sessions.Bind(scope, session.ID, principal.ID)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	apiToken, err := uc.apiTokens.Issue(principal, token.TenantID, bound.ID)
	if err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).InfoContext(ctx, "tenant session established",
		"user_id", principal.ID,
		"tenant_id", token.TenantID,
		"scope", scope)
	return &HandoffResult{Principal: principal, Session: bound, APIToken: apiToken}, nil
}
