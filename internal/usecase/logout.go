package usecase

import (
	"context"
	"log/slog"

	"tenant-gate/internal/domain"
	"tenant-gate/utils/logger"
)

// Logout destroys the caller's session for the current scope. Idempotent: a
// second logout, or a logout with no session, succeeds quietly.
type Logout struct {
	sessions domain.SessionStore
	logger   *logger.ContextLogger
}

// NewLogout creates a new Logout usecase.
func NewLogout(s domain.SessionStore, l *slog.Logger) *Logout {
	return &Logout{sessions: s, logger: logger.NewContextLogger(l)}
}

// Execute removes the session record for (dctx scope, sessionID).
func (uc *Logout) Execute(ctx context.Context, dctx domain.DomainContext, sessionID string) error {
	scope, err := domain.ScopeFor(dctx)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}

	uc.sessions.Delete(scope, sessionID)
	uc.logger.WithContext(ctx).InfoContext(ctx, "session destroyed", "scope", scope)
	return nil
}
