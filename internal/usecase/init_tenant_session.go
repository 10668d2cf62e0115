package usecase

import (
	"context"
	"log/slog"

	"tenant-gate/internal/domain"
	"tenant-gate/utils/logger"
)

// InitTenantSession issues a handoff token for an authenticated user who
// selected a tenant on the login domain.
type InitTenantSession struct {
	broker    domain.TokenBroker
	directory domain.Directory
	logger    *logger.ContextLogger
}

// NewInitTenantSession creates a new InitTenantSession usecase.
func NewInitTenantSession(b domain.TokenBroker, d domain.Directory, l *slog.Logger) *InitTenantSession {
	return &InitTenantSession{broker: b, directory: d, logger: logger.NewContextLogger(l)}
}

// Execute mints a handoff token binding userID to tenantID. Only the login
// domain may initiate a handoff; the tenant domain receives it.
func (uc *InitTenantSession) Execute(ctx context.Context, userID, tenantID string, dctx domain.DomainContext) (*domain.HandoffToken, error) {
	if !dctx.IsLogin() {
		return nil, domain.ErrDomainMismatch
	}

	principal, err := uc.directory.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := uc.broker.Issue(ctx, principal, tenantID)
	if err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).InfoContext(ctx, "handoff token issued",
		"tenant_id", tenantID)
	return token, nil
}
